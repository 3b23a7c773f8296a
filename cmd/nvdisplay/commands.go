package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/audit"
	"github.com/nerrad567/nvdisplay-core/internal/auth"
	"github.com/nerrad567/nvdisplay-core/internal/backend"
	"github.com/nerrad567/nvdisplay-core/internal/control"
	"github.com/nerrad567/nvdisplay-core/internal/display"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// runList prints every display of the device.
func runList(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usageErr("list takes no arguments")
	}
	o, err := newOneShot(ctx, e)
	if err != nil {
		return err
	}
	defer o.Close() //nolint:errcheck // One-shot teardown

	displays, err := o.svc.ListDisplays(ctx)
	if err != nil {
		return err
	}
	if e.json {
		return printJSON(e.stdout, displays)
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCONNECTED\tMODE\tMONITOR")
	for _, d := range displays {
		mode := "-"
		if m := d.Dynamic.ActiveMode; m != nil {
			mode = m.String()
		}
		monitor := d.Dynamic.Monitor
		if monitor == "" {
			monitor = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", d.ID, d.Name, d.Dynamic.Connected, mode, monitor)
	}
	return tw.Flush()
}

// runGet prints the named attributes of one display, or all of them.
func runGet(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return usageErr("get <display> [attribute...]")
	}
	kinds := make([]display.Kind, 0, len(args)-1)
	for _, a := range args[1:] {
		k, err := display.ParseKind(a)
		if err != nil {
			return err
		}
		kinds = append(kinds, k)
	}

	o, err := newOneShot(ctx, e)
	if err != nil {
		return err
	}
	defer o.Close() //nolint:errcheck // One-shot teardown

	d, err := o.svc.Display(ctx, args[0])
	if err != nil {
		return err
	}

	var readings []control.Reading
	if len(kinds) == 0 {
		readings, err = o.svc.Snapshot(ctx, d.ID)
		if err != nil {
			return err
		}
	} else {
		for _, k := range kinds {
			res, err := o.svc.GetAttribute(ctx, d.ID, k)
			if err != nil {
				// A single attribute is an answer or an error.
				if len(kinds) == 1 {
					return err
				}
				readings = append(readings, control.Reading{Kind: k, Error: err.Error(), ErrorCode: display.ErrorCode(err)})
				continue
			}
			readings = append(readings, control.Reading{
				Kind:       k,
				Value:      res.Value,
				Label:      res.Value.String(),
				ObservedAt: res.ObservedAt,
				Stale:      res.Stale,
			})
		}
	}

	if e.json {
		return printJSON(e.stdout, map[string]any{"display": d, "attributes": readings})
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, r := range readings {
		switch {
		case r.Error != "":
			fmt.Fprintf(tw, "%s\t%s\t(%s)\n", r.Kind, "-", r.ErrorCode)
		case r.Stale:
			fmt.Fprintf(tw, "%s\t%s\t(stale)\n", r.Kind, r.Label)
		default:
			fmt.Fprintf(tw, "%s\t%s\t\n", r.Kind, r.Label)
		}
	}
	return tw.Flush()
}

// runSet writes one attribute and reads it back.
func runSet(ctx context.Context, e *env, args []string) error {
	if len(args) != 3 {
		return usageErr("set <display> <attribute> <value>")
	}
	kind, err := display.ParseKind(args[1])
	if err != nil {
		return err
	}
	value, err := display.ParseValue(kind, args[2])
	if err != nil {
		return err
	}

	o, err := newOneShot(ctx, e)
	if err != nil {
		return err
	}
	defer o.Close() //nolint:errcheck // One-shot teardown

	d, err := o.svc.Display(ctx, args[0])
	if err != nil {
		return err
	}
	origin := control.Origin{Source: audit.SourceCLI, Actor: os.Getenv("USER")}
	if err := o.svc.SetAttributeAs(ctx, origin, d.ID, kind, value); err != nil {
		return err
	}
	res, err := o.svc.GetAttribute(ctx, d.ID, kind)
	if err != nil {
		return err
	}

	if e.json {
		return printJSON(e.stdout, control.Reading{
			Kind:       kind,
			Value:      res.Value,
			Label:      res.Value.String(),
			ObservedAt: res.ObservedAt,
			Stale:      res.Stale,
		})
	}
	fmt.Fprintf(e.stdout, "%s %s = %s\n", d.Name, kind, res.Value)
	return nil
}

// statusReport is the output of status.
type statusReport struct {
	Supported bool                `json:"supported"`
	Backend   string              `json:"backend,omitempty"`
	Displays  int                 `json:"displays"`
	Connected int                 `json:"connected"`
	Stats     *backend.RealStats  `json:"stats,omitempty"`
	Driver    *backend.DriverInfo `json:"driver,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// runStatus reports whether a path to the hardware works. It exits with
// the error kind when none does.
func runStatus(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usageErr("status takes no arguments")
	}
	db, rec, err := openAudit(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close() //nolint:errcheck // One-shot teardown
	}
	b := newBackend(e.cfg, e.log, rec)
	defer b.Close() //nolint:errcheck // One-shot teardown

	var rep statusReport
	if info, err := backend.ReadDriverInfo(e.cfg.Device.DriverInfoPath); err == nil {
		rep.Driver = &info
	}
	displays, listErr := b.ListDisplays(ctx)
	rep.Supported = listErr == nil
	rep.Backend = b.Active()
	st := b.Stats()
	rep.Stats = &st
	rep.Displays = len(displays)
	for _, d := range displays {
		if d.Dynamic.Connected {
			rep.Connected++
		}
	}
	if listErr != nil {
		rep.Error = listErr.Error()
	}

	if e.json {
		if err := printJSON(e.stdout, rep); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(e.stdout, "supported: %t\n", rep.Supported)
		if rep.Backend != "" {
			fmt.Fprintf(e.stdout, "backend:   %s\n", rep.Backend)
		}
		if st.FellBack {
			fmt.Fprintf(e.stdout, "fallback:  %s\n", st.FallbackCause)
		}
		fmt.Fprintf(e.stdout, "displays:  %d (%d connected)\n", rep.Displays, rep.Connected)
		if rep.Driver != nil {
			fmt.Fprintf(e.stdout, "driver:    %s (open kernel module: %t)\n", rep.Driver.Version, rep.Driver.Open)
		}
	}
	return listErr
}

// infoReport is the output of info.
type infoReport struct {
	Version    string              `json:"version"`
	Commit     string              `json:"commit"`
	BuildDate  string              `json:"build_date"`
	GoVersion  string              `json:"go_version"`
	Platform   string              `json:"platform"`
	Device     string              `json:"device"`
	Emulated   bool                `json:"emulated"`
	Fallback   string              `json:"fallback,omitempty"`
	Driver     *backend.DriverInfo `json:"driver,omitempty"`
	DriverErr  string              `json:"driver_error,omitempty"`
	Attributes []display.Kind      `json:"attributes"`
}

// runInfo prints build, driver and configuration details without
// touching the device.
func runInfo(_ context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usageErr("info takes no arguments")
	}
	rep := infoReport{
		Version:    version,
		Commit:     commit,
		BuildDate:  date,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Device:     e.cfg.Device.Path,
		Emulated:   e.cfg.Device.Emulate,
		Attributes: display.Kinds(),
	}
	if e.cfg.Fallback.Enabled {
		rep.Fallback = e.cfg.Fallback.Binary
	}
	if info, err := backend.ReadDriverInfo(e.cfg.Device.DriverInfoPath); err == nil {
		rep.Driver = &info
	} else {
		rep.DriverErr = err.Error()
	}

	if e.json {
		return printJSON(e.stdout, rep)
	}
	fmt.Fprintf(e.stdout, "nvdisplay %s (%s, built %s) %s %s\n", rep.Version, rep.Commit, rep.BuildDate, rep.GoVersion, rep.Platform)
	fmt.Fprintf(e.stdout, "device:     %s", rep.Device)
	if rep.Emulated {
		fmt.Fprint(e.stdout, " (emulated)")
	}
	fmt.Fprintln(e.stdout)
	if rep.Fallback != "" {
		fmt.Fprintf(e.stdout, "fallback:   %s\n", rep.Fallback)
	}
	if rep.Driver != nil {
		fmt.Fprintf(e.stdout, "driver:     %s (open kernel module: %t)\n", rep.Driver.Version, rep.Driver.Open)
	} else {
		fmt.Fprintf(e.stdout, "driver:     unknown (%s)\n", rep.DriverErr)
	}
	kinds := make([]string, len(rep.Attributes))
	for i, k := range rep.Attributes {
		kinds[i] = string(k)
	}
	fmt.Fprintf(e.stdout, "attributes: %s\n", strings.Join(kinds, ", "))
	return nil
}

// runToken prints a signed bearer token for the API.
func runToken(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	role := fs.String("role", string(auth.RoleViewer), "role: viewer or operator")
	subject := fs.String("subject", os.Getenv("USER"), "token subject, recorded as the audit actor")
	ttl := fs.Duration("ttl", auth.DefaultTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return usageErr("%v", err)
	}
	if fs.NArg() != 0 {
		return usageErr("token takes flags only")
	}
	if e.cfg.Security.JWT.Secret == "" {
		return fmt.Errorf("%w: security.jwt.secret is not set (set NVDISPLAY_JWT_SECRET)", errUsage)
	}

	r, err := auth.ParseRole(*role)
	if err != nil {
		return usageErr("%v", err)
	}
	tok, err := auth.GenerateToken(*subject, r, e.cfg.Security.JWT.Secret, *ttl)
	if err != nil {
		return err
	}
	if e.json {
		return printJSON(e.stdout, map[string]any{
			"token":      tok,
			"role":       r,
			"subject":    *subject,
			"expires_at": time.Now().Add(*ttl).UTC(),
		})
	}
	fmt.Fprintln(e.stdout, tok)
	return nil
}
