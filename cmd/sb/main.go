// Command sb is the seedbank command-line front end. All engine work
// happens behind the librarian facade; this binary only parses verbs,
// builds the wiring, and prints results.
package main

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/sqweebloid/seedbank/internal/blobstore"
	"github.com/sqweebloid/seedbank/internal/config"
	"github.com/sqweebloid/seedbank/internal/filex"
	"github.com/sqweebloid/seedbank/internal/flagx"
	"github.com/sqweebloid/seedbank/internal/jobs"
	"github.com/sqweebloid/seedbank/internal/ledger"
	"github.com/sqweebloid/seedbank/internal/librarian"
	"github.com/sqweebloid/seedbank/internal/logging"
	"github.com/sqweebloid/seedbank/internal/remote"
	"github.com/sqweebloid/seedbank/internal/transfer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sb:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadConfig()
	ctx := context.Background()

	// Global flags were consumed by config; strip them (values
	// included) so the verb is the first token left over.
	rest := flagx.StripFlags(os.Args[1:], config.GlobalFlagNames())
	if len(rest) == 0 {
		return fmt.Errorf("usage: sb [flags] <init|create|list|upload|resume|cancel|retrieve|check> ...")
	}
	verb, args := rest[0], rest[1:]

	lib, closeFn, err := buildLibrarian(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	switch verb {
	case "init":
		// Opening the ledger runs migrations and creates the blob
		// directories, so init only has to report where things landed.
		fmt.Printf("ledger initialized at %s, blobs at %s\n", cfg.LedgerPath, cfg.BlobDir)
		return nil
	case "create":
		return cmdCreate(ctx, lib, args)
	case "list":
		return cmdList(ctx, lib)
	case "upload":
		return cmdUpload(ctx, lib, args)
	case "resume":
		return cmdResume(ctx, lib, args)
	case "cancel":
		return cmdCancel(ctx, lib, args)
	case "retrieve":
		return cmdRetrieve(ctx, lib, args)
	case "check":
		return cmdCheck(ctx, lib)
	default:
		return fmt.Errorf("unknown command %q", verb)
	}
}

func buildLibrarian(ctx context.Context, cfg *config.Config) (*librarian.Librarian, func(), error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	db, err := ledger.OpenDB(ctx, cfg.LedgerPath)
	if err != nil {
		return nil, nil, err
	}

	blobs, err := blobstore.New(cfg.BlobDir)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	vault, err := remote.NewS3Vault(ctx, cfg.S3)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	records := ledger.NewSQLiteStore(db, cfg.IDHexLen)
	tracker := jobs.NewTracker(db)
	engine := transfer.New(vault, tracker, blobs, logger, cfg.Transfer)
	reconciler := jobs.NewReconciler(tracker, vault, logger)

	lib := librarian.New(librarian.Deps{
		Records:    records,
		Tracker:    tracker,
		Engine:     engine,
		Reconciler: reconciler,
		Blobs:      blobs,
		Logger:     logger,
		LedgerPath: cfg.LedgerPath,
	})
	return lib, func() { db.Close() }, nil
}

func cmdCreate(ctx context.Context, lib *librarian.Librarian, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sb create <path> [description]")
	}
	path := args[0]
	description := ""
	if len(args) > 1 {
		description = args[1]
	}

	listed, err := filex.ListFiles(path)
	if err != nil {
		return err
	}
	files := make([]ledger.FileEntry, len(listed))
	for i, f := range listed {
		files[i] = ledger.FileEntry{RelPath: f.RelPath, Size: f.Size}
	}

	payload := tarball(path, listed)
	defer payload.Close()

	rec, err := lib.CreateArchive(ctx, path, description, files, payload)
	if err != nil {
		return err
	}
	fmt.Printf("created archive %s (%d files)\n", rec.ID, len(rec.Files))
	return nil
}

// tarball streams the listed files of dir as a tar archive.
func tarball(dir string, files []filex.FileEntry) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		tw := tar.NewWriter(pw)
		for _, f := range files {
			full := filepath.Join(dir, filepath.FromSlash(f.RelPath))
			if err := addFile(tw, full, f); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		if err := tw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()
	return pr
}

func addFile(tw *tar.Writer, full string, f filex.FileEntry) error {
	src, err := os.Open(full)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := tw.WriteHeader(&tar.Header{
		Name: f.RelPath,
		Mode: 0o644,
		Size: f.Size,
	}); err != nil {
		return err
	}
	_, err = io.Copy(tw, src)
	return err
}

func cmdList(ctx context.Context, lib *librarian.Librarian) error {
	records, err := lib.ListArchives(ctx, 0)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%s  %s  upload=%s  %s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.UploadStatus, r.Description)
	}
	return nil
}

func cmdUpload(ctx context.Context, lib *librarian.Librarian, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sb upload <reference>")
	}
	job, err := lib.StartUpload(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("upload %s: %s (%s)\n", job.ID, job.State, job.Strategy)
	return nil
}

func cmdResume(ctx context.Context, lib *librarian.Librarian, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sb resume <job-id>")
	}
	job, err := lib.ResumeUpload(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("upload %s: %s\n", job.ID, job.State)
	return nil
}

func cmdCancel(ctx context.Context, lib *librarian.Librarian, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sb cancel <job-id>")
	}
	if err := lib.CancelUpload(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("cancellation requested")
	return nil
}

func cmdRetrieve(ctx context.Context, lib *librarian.Librarian, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sb retrieve <reference>")
	}
	job, err := lib.StartRetrieval(ctx, args[0], nil)
	if err != nil {
		return err
	}
	fmt.Printf("retrieval %s: %s\n", job.ID, job.State)
	return nil
}

func cmdCheck(ctx context.Context, lib *librarian.Librarian) error {
	result, err := lib.CheckJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range result.Retrievals {
		fmt.Printf("retrieval %s (archive %s): %s\n", job.ID, job.ArchiveID, job.State)
	}
	for _, anomaly := range result.Anomalies {
		fmt.Println("anomaly:", anomaly)
	}
	if len(result.Retrievals) == 0 {
		fmt.Println("no open retrieval jobs")
	}
	return nil
}
