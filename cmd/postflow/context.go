package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"postflow/internal/apiclient"
	"postflow/internal/config"
	"postflow/internal/queue"
	"postflow/internal/queueaccess"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil {
		if value := strings.TrimSpace(*c.apiFlag); value != "" {
			return value
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return ""
	}
	return cfg.APIBaseURL()
}

func (c *commandContext) client() (*apiclient.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	address := c.apiAddress()
	client, err := apiclient.New(address, cfg.API.Token)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return client, nil
}

// wrapClientError turns transport failures into an actionable message.
func wrapClientError(err error, address string) error {
	if errors.Is(err, apiclient.ErrDaemonUnavailable) {
		return fmt.Errorf("connect to daemon at %s: not reachable; start it with `postflow daemon`", address)
	}
	return err
}

func (c *commandContext) withClient(fn func(*apiclient.Client) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return wrapClientError(fn(client), c.apiAddress())
}

// withAccess runs fn against the daemon API, or against the database when
// the daemon is down.
func (c *commandContext) withAccess(cmd *cobra.Command, fn func(queueaccess.Access) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := c.client()
	if err != nil {
		return err
	}
	session, err := queueaccess.OpenWithFallback(cmd.Context(), client, func() (*queue.Store, error) {
		return queue.Open(cfg)
	})
	if err != nil {
		return err
	}
	defer session.Close()
	if session.Offline {
		fmt.Fprintln(cmd.ErrOrStderr(), "daemon not reachable; reading the database directly")
	}
	return fn(session.Access)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
