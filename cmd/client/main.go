package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/observability"
)

const usage = `usage: client [flags] <command> [args]

commands:
  register <username> <password>
  login    <username> <password>
  upload   <user-id> <path>
  list
  download <file-id> [output-path]
  delete   <user-id> <file-id>
  preview  <file-id> <output.jpg> [width]

flags:
`

func main() {
	serverURL := flag.String("server", envOr("FILESYNC_URL", "http://localhost:3001"), "base URL of the file sync server")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall request timeout")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	zl, err := observability.InitLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()
	log := observability.NewSugaredLogger(zl)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := NewFileClient(*serverURL, *timeout)
	if err := run(ctx, client, log, flag.Args()); err != nil {
		log.Errorf("%s failed: %v", flag.Arg(0), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *FileClient, log *observability.SugaredLogger, args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "register", "login":
		if len(args) != 2 {
			return fmt.Errorf("%s needs <username> <password>", cmd)
		}
		call := client.Login
		if cmd == "register" {
			call = client.Register
		}
		u, err := call(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		log.Infof("✓ %s ok: user %q has id %d", cmd, u.Username, u.ID)

	case "upload":
		if len(args) != 2 {
			return fmt.Errorf("upload needs <user-id> <path>")
		}
		userID, err := parseID(args[0])
		if err != nil {
			return err
		}
		client.progress = printProgress("Uploading")
		f, err := client.UploadFile(ctx, args[1], userID)
		fmt.Println()
		if err != nil {
			return err
		}
		log.Infof("✓ Uploaded: %s (ID: %d, Size: %d bytes)", f.OriginalName, f.ID, f.FileSize)

	case "list":
		files, err := client.ListFiles(ctx)
		if err != nil {
			return err
		}
		log.Infof("✓ Found %d files", len(files))
		for i, f := range files {
			by := "-"
			if f.UploadedByName != nil {
				by = *f.UploadedByName
			}
			fmt.Printf("  %d. %s (ID: %d, %d bytes, %s, by %s, %s)\n",
				i+1, f.OriginalName, f.ID, f.FileSize, f.FileType, by, f.UploadDate)
		}

	case "download":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("download needs <file-id> [output-path]")
		}
		fileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		out := "."
		if len(args) == 2 {
			out = args[1]
		}
		client.progress = printProgress("Downloading")
		path, err := client.DownloadFile(ctx, fileID, out)
		fmt.Println()
		if err != nil {
			return err
		}
		log.Infof("✓ File downloaded to %s", path)

	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("delete needs <user-id> <file-id>")
		}
		userID, err := parseID(args[0])
		if err != nil {
			return err
		}
		fileID, err := parseID(args[1])
		if err != nil {
			return err
		}
		if err := client.DeleteFile(ctx, fileID, userID); err != nil {
			return err
		}
		log.Infof("✓ File %d deleted", fileID)

	case "preview":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("preview needs <file-id> <output.jpg> [width]")
		}
		fileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		width := 0
		if len(args) == 3 {
			if width, err = strconv.Atoi(args[2]); err != nil {
				return fmt.Errorf("bad width %q", args[2])
			}
		}
		if err := client.PreviewFile(ctx, fileID, width, args[1]); err != nil {
			return err
		}
		log.Infof("✓ Preview written to %s", args[1])

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q", s)
	}
	return id, nil
}

func printProgress(label string) func(done, total int64) {
	return func(done, total int64) {
		if total <= 0 {
			fmt.Printf("\r%s: %d bytes", label, done)
			return
		}
		fmt.Printf("\r%s: %.2f%%", label, float64(done)/float64(total)*100)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
