package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	decrefs []string
	err     error
}

func (f *fakeSession) Decref(key string) error {
	f.decrefs = append(f.decrefs, key)
	return f.err
}

func TestRunnerPutDecrefsOnLiveSession(t *testing.T) {
	fs := &fakeSession{}
	sess := NewManagedSession(fs)
	r := NewRunner(nil)
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := <-r.Put(ctx, "chunk-1", sess)
	require.NoError(t, err)
	require.Equal(t, []string{"chunk-1"}, fs.decrefs)
}

func TestRunnerPutSkipsClosedSession(t *testing.T) {
	fs := &fakeSession{}
	sess := NewManagedSession(fs)
	sess.Close()

	r := NewRunner(nil)
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := <-r.Put(ctx, "chunk-1", sess)
	require.NoError(t, err)
	require.Empty(t, fs.decrefs, "a closed session must never receive a decref call")
}

func TestRunnerSwallowsClassifiedErrors(t *testing.T) {
	wantErr := errors.New("actor not found")
	fs := &fakeSession{err: wantErr}
	sess := NewManagedSession(fs)

	r := NewRunner(func(err error) bool { return errors.Is(err, wantErr) })
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := <-r.Put(ctx, "chunk-1", sess)
	require.NoError(t, err, "classified errors resolve as success, matching the original's bare-except-then-set_result(None) path")
}

func TestRunnerPropagatesUnclassifiedErrors(t *testing.T) {
	wantErr := errors.New("disk full")
	fs := &fakeSession{err: wantErr}
	sess := NewManagedSession(fs)

	r := NewRunner(func(error) bool { return false })
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := <-r.Put(ctx, "chunk-1", sess)
	require.ErrorIs(t, err, wantErr)
}

func TestRunnerStartsLazilyOnFirstPut(t *testing.T) {
	r := NewRunner(nil)
	t.Cleanup(r.Stop)

	fs := &fakeSession{}
	sess := NewManagedSession(fs)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Put must succeed without an explicit prior call to Start.
	err := <-r.Put(ctx, "chunk-1", sess)
	require.NoError(t, err)
	require.Equal(t, []string{"chunk-1"}, fs.decrefs)
}
