package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/app"
	"github.com/yungbote/tessera-backend/internal/authz"
	"github.com/yungbote/tessera-backend/internal/observability"
	"github.com/yungbote/tessera-backend/internal/platform/shutdown"
)

const usage = `tessera <command> [flags]

Commands:
  serve           run migrations and the anchor worker until interrupted
  deconstruct     split an approved document into encrypted content sets
  reconstruct     assemble the view a grant holder is entitled to see
  verify          re-check stored hashes and envelopes for one document
  rotate          reseal every content set of a document under fresh keys
  destroy         destroy a document, its envelopes, and its keys
  destroy-set     erase a single content set from an active document
  seed-profiles   upsert tenant security profiles from a YAML file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	otelShutdown := observability.InitOTel(ctx, application.Log, observability.OtelConfig{
		ServiceName: "tessera-backend",
		Environment: application.Cfg.Environment,
		Version:     application.Cfg.Version,
	})
	if otelShutdown != nil {
		defer otelShutdown(context.Background())
	}

	if err := run(ctx, application, cmd, args); err != nil {
		fmt.Printf("%s: %v\n", cmd, err)
		application.Close()
		if otelShutdown != nil {
			otelShutdown(context.Background())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "serve":
		return runServe(ctx, a)
	case "deconstruct":
		return runDeconstruct(ctx, a, args)
	case "reconstruct":
		return runReconstruct(ctx, a, args)
	case "verify":
		return runVerify(ctx, a, args)
	case "rotate":
		return runRotate(ctx, a, args)
	case "destroy":
		return runDestroy(ctx, a, args)
	case "destroy-set":
		return runDestroySet(ctx, a, args)
	case "seed-profiles":
		return runSeedProfiles(ctx, a, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runServe(ctx context.Context, a *app.App) error {
	a.Start()
	a.Log.Info("tessera running",
		"hsm_provider", a.Cfg.HSMProvider,
		"blob_backend", a.Cfg.BlobBackend,
		"anchor_worker", a.Cfg.AnchorWorker,
	)
	<-ctx.Done()
	a.Log.Info("shutting down")
	return nil
}

func runDeconstruct(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("deconstruct", flag.ExitOnError)
	doc := fs.String("document", "", "document id")
	session := fs.String("session", "", "approved markup session id")
	fs.Parse(args)

	docID, err := parseID("document", *doc)
	if err != nil {
		return err
	}
	sessionID, err := parseID("session", *session)
	if err != nil {
		return err
	}

	res, err := a.Services.Deconstruction.Deconstruct(ctx, docID, sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("document %s deconstructed: %d markers, %d content sets, base hash %s\n",
		res.DocumentID, res.MarkerCount, len(res.ContentSets), short(res.BaseHash))
	for _, set := range res.ContentSets {
		fmt.Printf("  set %-16s key=%s storage=%s replicated=%t\n",
			set.SetIdentifier, set.KeyID, set.StorageRef, set.Replicated)
	}
	if res.AnchorTxID != "" {
		fmt.Printf("  anchor tx %s\n", res.AnchorTxID)
	}
	return nil
}

func runReconstruct(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("reconstruct", flag.ExitOnError)
	doc := fs.String("document", "", "document id")
	viewer := fs.String("viewer", "", "viewer id")
	level := fs.String("level", "", "access level id")
	fs.Parse(args)

	docID, err := parseID("document", *doc)
	if err != nil {
		return err
	}
	viewerID, err := parseID("viewer", *viewer)
	if err != nil {
		return err
	}
	levelID, err := parseID("level", *level)
	if err != nil {
		return err
	}

	view, err := a.Services.Reconstruction.Reconstruct(ctx, docID, viewerID, levelID)
	if err != nil {
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			return fmt.Errorf("denied by %s provider: %s", denied.Provider, denied.Reason)
		}
		return err
	}
	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runVerify(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	doc := fs.String("document", "", "document id")
	fs.Parse(args)

	docID, err := parseID("document", *doc)
	if err != nil {
		return err
	}

	report, err := a.Services.Integrity.VerifyIntegrity(ctx, docID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !report.AllPassed {
		return errors.New("integrity verification failed")
	}
	return nil
}

func runRotate(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	doc := fs.String("document", "", "document id")
	fs.Parse(args)

	docID, err := parseID("document", *doc)
	if err != nil {
		return err
	}

	res, err := a.Services.Rotation.RotateKeys(ctx, docID)
	if err != nil {
		return err
	}
	fmt.Printf("document %s rotated: %d keys resealed\n", res.DocumentID, len(res.Rotated))
	for _, rk := range res.Rotated {
		fmt.Printf("  set %-16s %s -> %s\n", rk.SetIdentifier, rk.OldKeyID, rk.NewKeyID)
	}
	if res.AnchorTxID != "" {
		fmt.Printf("  anchor tx %s\n", res.AnchorTxID)
	}
	return nil
}

func runDestroy(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("destroy", flag.ExitOnError)
	doc := fs.String("document", "", "document id")
	reason := fs.String("reason", "", "destruction reason")
	clearance := fs.Bool("clearance", false, "regulatory clearance confirmed")
	fs.Parse(args)

	docID, err := parseID("document", *doc)
	if err != nil {
		return err
	}

	res, err := a.Services.Destruction.Destroy(ctx, docID, *reason, *clearance)
	if err != nil {
		return err
	}
	fmt.Printf("document %s destroyed: %d keys, sets [%s]\n",
		res.DocumentID, res.KeysDestroyed, strings.Join(res.ContentSets, ", "))
	if res.AnchorTxID != "" {
		fmt.Printf("  anchor tx %s\n", res.AnchorTxID)
	}
	return nil
}

func runDestroySet(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("destroy-set", flag.ExitOnError)
	doc := fs.String("document", "", "document id")
	set := fs.String("set", "", "content set identifier")
	reason := fs.String("reason", "", "erasure reason")
	basis := fs.String("basis", "", "regulatory basis, e.g. gdpr-article-17")
	fs.Parse(args)

	docID, err := parseID("document", *doc)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*set) == "" {
		return errors.New("-set is required")
	}

	res, err := a.Services.Destruction.DestroyContentSet(ctx, docID, *set, *reason, *basis)
	if err != nil {
		return err
	}
	fmt.Printf("document %s: content set %s erased, %d keys destroyed\n",
		res.DocumentID, res.SetIdentifier, res.KeysDestroyed)
	if res.AnchorTxID != "" {
		fmt.Printf("  anchor tx %s\n", res.AnchorTxID)
	}
	return nil
}

func runSeedProfiles(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("seed-profiles", flag.ExitOnError)
	file := fs.String("file", a.Cfg.ProfileSeedPath, "profile seed YAML path")
	fs.Parse(args)

	if strings.TrimSpace(*file) == "" {
		return errors.New("-file is required when SECURITY_PROFILE_SEED is unset")
	}
	return app.SeedSecurityProfiles(ctx, a.Repos.Profiles, a.Log, *file)
}

func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("-%s must be a UUID", name)
	}
	return id, nil
}

func short(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}
