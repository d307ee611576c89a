package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lingoleap/webauth"
	"github.com/lingoleap/webauth/profile"
	"github.com/urfave/cli/v2"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with email and password",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Usage:    "Account email",
				EnvVars:  []string{"WEBAUTH_EMAIL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "password",
				Aliases:  []string{"p"},
				Usage:    "Account password",
				EnvVars:  []string{"WEBAUTH_PASSWORD"},
				Required: true,
			},
		},
		Action: login,
	}
}

func login(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}

	route, err := rt.client.Authenticate(commandContext(c), "", map[string]string{
		"email":    c.String("email"),
		"password": c.String("password"),
	})
	if err != nil {
		var statusErr *webauth.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("sign in rejected: %s", statusErr.Message)
		}
		return err
	}

	user, _ := rt.session.Profile()
	fmt.Fprintf(c.App.Writer, "Signed in as %s (%s)\n", user.Email, user.Role)
	fmt.Fprintf(c.App.Writer, "Landing route: %s\n", route)
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Forget the saved session",
		Action: logout,
	}
}

func logout(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	if err := rt.session.Logout(commandContext(c)); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Signed out")
	return nil
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "Refresh the profile from the platform first",
			},
		},
		Action: whoami,
	}
}

func whoami(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	if !rt.session.IsAuthenticated() {
		return errors.New("not signed in")
	}

	user, _ := rt.session.Profile()
	if c.Bool("sync") {
		if user, err = rt.client.SyncProfile(commandContext(c)); err != nil {
			return err
		}
	}
	return writeJSON(c.App.Writer, user)
}

func routeCommand() *cli.Command {
	return &cli.Command{
		Name:   "route",
		Usage:  "Print the landing route for the signed-in user",
		Action: route,
	}
}

func route(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, rt.session.LandingRoute())
	return nil
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "GET an API path with the saved credentials",
		ArgsUsage: "PATH",
		Action:    get,
	}
}

func get(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: webauth get PATH")
	}
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}

	req, err := rt.client.NewRequest(commandContext(c), http.MethodGet, c.Args().First(), nil)
	if err != nil {
		return err
	}
	resp, err := rt.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, err = io.Copy(c.App.Writer, resp.Body)
	return err
}

func patchProfileCommand() *cli.Command {
	return &cli.Command{
		Name:      "patch-profile",
		Usage:     "Update profile fields on the platform and in the saved session",
		ArgsUsage: "KEY=VALUE...",
		Action:    patchProfile,
	}
}

func patchProfile(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("usage: webauth patch-profile KEY=VALUE...")
	}
	patch, err := parsePatch(c.Args().Slice())
	if err != nil {
		return err
	}

	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	if !rt.session.IsAuthenticated() {
		return errors.New("not signed in")
	}

	ctx := commandContext(c)
	var server json.RawMessage
	if err := rt.client.PatchJSON(ctx, rt.config.HTTP.ProfilePath, patch, &server); err != nil {
		return err
	}
	// prefer the platform's view of the profile when it returns one
	if len(server) > 0 && server[0] == '{' {
		if p, err := profile.PatchFromJSON(server); err == nil {
			patch = p
		}
	}
	if err := rt.session.UpdateUser(ctx, patch); err != nil {
		return err
	}

	user, _ := rt.session.Profile()
	return writeJSON(c.App.Writer, user)
}

// parsePatch reads KEY=VALUE pairs. Values that parse as JSON keep their
// type, so points=10 is a number and avatar=null clears the field.
func parsePatch(args []string) (webauth.Patch, error) {
	patch := make(webauth.Patch, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want KEY=VALUE", arg)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		patch[key] = value
	}
	return patch, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
