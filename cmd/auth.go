package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/tunesync/internal/formatter"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/urfave/cli/v3"
)

const authTimeout = 5 * time.Minute

func parsePlatform(s string) (models.Platform, error) {
	if s == "" {
		return "", fmt.Errorf("%w: platform", shared.ErrMissingArgument)
	}
	p, err := models.ParsePlatform(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return p, nil
}

// callbackAddr derives the local listen address and path from a platform's redirect URI.
func (r *Runner) callbackAddr(p models.Platform) (string, string, error) {
	addr, path := r.config.Server.Addr(), "/callback"

	client, _ := r.config.Credentials.Client(string(p))
	if client.RedirectURI == "" {
		return addr, path, nil
	}

	u, err := url.Parse(client.RedirectURI)
	if err != nil {
		return "", "", fmt.Errorf("%w: redirect_uri for %s: %v", shared.ErrInvalidConfig, p, err)
	}
	if u.Host != "" {
		addr = u.Host
	}
	if u.Path != "" {
		path = u.Path
	}
	return addr, path, nil
}

// AuthConnect runs the authorization code flow for a platform and stores the resulting credential.
func (r *Runner) AuthConnect(ctx context.Context, cmd *cli.Command) error {
	p, err := parsePlatform(cmd.StringArg("platform"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	oauth, err := r.registry.OAuth(p)
	if err != nil {
		return fmt.Errorf("%w: configure [credentials.%s] first: %v", shared.ErrMissingCredentials, p, err)
	}

	addr, path, err := r.callbackAddr(p)
	if err != nil {
		return err
	}

	state := shared.GenerateID()
	handler := server.NewOAuthHandler(oauth, p.DisplayName(), state, path)
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger))
	router.Handler(handler)

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, server.New(addr, router), r.logger)
	}()

	authURL := oauth.AuthURL(state)
	r.writePlain("Connecting %s for subject %q\n", p.DisplayName(), r.subject)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize:\n%s\n", authURL)
	} else if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser", "error", err)
		r.writePlain("Open this URL to authorize:\n%s\n", authURL)
	}

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serveErr:
		if err == nil {
			err = ctx.Err()
		}
		return fmt.Errorf("%w: callback server: %v", shared.ErrAuthFailed, err)
	case <-ctx.Done():
		return fmt.Errorf("%w: timed out waiting for authorization", shared.ErrAuthFailed)
	}

	cancel()
	if err := <-serveErr; err != nil {
		r.logger.Warn("callback server did not shut down cleanly", "error", err)
	}

	if err := result.Error(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	cred := services.CredentialFromToken(p, r.subject, result.Token)
	if err := r.manager.Connect(cred); err != nil {
		return err
	}

	r.logger.Info("platform connected", "platform", p, "subject", r.subject)
	return r.writePlain("✓ %s connected\n", p.DisplayName())
}

// AuthStatus prints the connection state of every platform for the subject.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	conns, err := r.manager.Connections(r.subject)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(conns, true)
	}

	live, err := r.manager.LiveConnections(ctx, r.subject)
	if err != nil {
		return err
	}

	r.writeBlock(formatter.ConnectionsTable(conns))
	if len(live) < 2 {
		r.writePlain("Connect at least two platforms to run sync jobs.\n")
	}
	return nil
}

// AuthDisconnect removes the stored credential of a platform.
func (r *Runner) AuthDisconnect(ctx context.Context, cmd *cli.Command) error {
	p, err := parsePlatform(cmd.StringArg("platform"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	if err := r.manager.Disconnect(p, r.subject); err != nil {
		return err
	}
	return r.writePlain("✓ %s disconnected\n", p.DisplayName())
}
