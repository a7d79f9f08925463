package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors represents multiple validation errors collected during
// one ValidateExtended pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; "))
}

// ValidateExtended performs validation beyond Validate's directory-creation
// checks: format and range checks on the node, p2p, actor_pool and
// analyzer sections.
func (c *Config) ValidateExtended() error {
	var errs ValidationErrors

	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateP2P()...)
	errs = append(errs, c.validateActorPool()...)
	errs = append(errs, c.validateAnalyzer()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateNode() ValidationErrors {
	var errs ValidationErrors
	validEnvironments := []string{"development", "testing", "staging", "production"}
	if !contains(validEnvironments, c.Node.Environment) {
		errs = append(errs, ValidationError{
			Field:   "node.environment",
			Value:   c.Node.Environment,
			Message: fmt.Sprintf("environment must be one of: %s", strings.Join(validEnvironments, ", ")),
		})
	}
	return errs
}

func (c *Config) validateP2P() ValidationErrors {
	var errs ValidationErrors
	if c.P2P.Listen != "" && !isValidMultiaddrOrListenAddress(c.P2P.Listen) {
		errs = append(errs, ValidationError{
			Field:   "p2p.listen",
			Value:   c.P2P.Listen,
			Message: "invalid listen address format",
		})
	}
	for i, peer := range c.P2P.Bootstrap {
		if !isValidPeerAddress(peer) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("p2p.bootstrap[%d]", i),
				Value:   peer,
				Message: "invalid peer address format",
			})
		}
	}
	return errs
}

func (c *Config) validateActorPool() ValidationErrors {
	var errs ValidationErrors
	validRecover := []string{"none", "process", "actor"}
	if !contains(validRecover, c.ActorPool.AutoRecover) {
		errs = append(errs, ValidationError{
			Field:   "actor_pool.auto_recover",
			Value:   c.ActorPool.AutoRecover,
			Message: fmt.Sprintf("auto_recover must be one of: %s", strings.Join(validRecover, ", ")),
		})
	}
	if c.ActorPool.NumProcess < 1 {
		errs = append(errs, ValidationError{
			Field:   "actor_pool.num_process",
			Value:   c.ActorPool.NumProcess,
			Message: "must be >= 1",
		})
	}
	return errs
}

func (c *Config) validateAnalyzer() ValidationErrors {
	var errs ValidationErrors
	validShuffle := []string{"by_key", "by_index"}
	if !contains(validShuffle, c.Analyzer.ShuffleFetchType) {
		errs = append(errs, ValidationError{
			Field:   "analyzer.shuffle_fetch_type",
			Value:   c.Analyzer.ShuffleFetchType,
			Message: fmt.Sprintf("shuffle_fetch_type must be one of: %s", strings.Join(validShuffle, ", ")),
		})
	}
	if c.Analyzer.InitialSameColorNum < 0 {
		errs = append(errs, ValidationError{
			Field:   "analyzer.initial_same_color_num",
			Value:   c.Analyzer.InitialSameColorNum,
			Message: "must be >= 0",
		})
	}
	return errs
}

// Helper functions

func isValidMultiaddrOrListenAddress(addr string) bool {
	if strings.HasPrefix(addr, "/") {
		return true // multiaddr format, e.g. /ip4/0.0.0.0/tcp/4001
	}
	return isValidListenAddress(addr)
}

func isValidListenAddress(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil && host != "localhost" {
		return false
	}
	if portNum, err := strconv.Atoi(port); err != nil || portNum < 0 || portNum > 65535 {
		return false
	}
	return true
}

func isValidPeerAddress(addr string) bool {
	if strings.HasPrefix(addr, "/") {
		return true
	}
	return isValidListenAddress(addr)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
