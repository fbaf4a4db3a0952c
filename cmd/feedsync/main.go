// Command feedsync is a terminal client for the feed service: posts, likes,
// comments, notifications and learning plans, kept in step with the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedsync/internal/app"
	"feedsync/internal/config"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: feedsync <command> [flags] [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Account:")
	fmt.Fprintln(w, "  login --email <e> [--password <p>]      Sign in (password falls back to FEEDSYNC_PASSWORD)")
	fmt.Fprintln(w, "  register --name <n> --email <e> [--password <p>]")
	fmt.Fprintln(w, "  logout                                  Forget the stored credential")
	fmt.Fprintln(w, "  whoami                                  Show the signed-in user")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Posts:")
	fmt.Fprintln(w, "  feed [--following]                      List posts")
	fmt.Fprintln(w, "  post --content <c> [--image f]... [--video f]")
	fmt.Fprintln(w, "  edit <post-id> --content <c>            Edit your post")
	fmt.Fprintln(w, "  delete <post-id>                        Delete your post")
	fmt.Fprintln(w, "  like <post-id> | unlike <post-id>")
	fmt.Fprintln(w, "  media <file-id> --out <path> [--thumb <px>]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Comments:")
	fmt.Fprintln(w, "  comments <post-id>                      List comments")
	fmt.Fprintln(w, "  comment <post-id> --content <c>         Add a comment")
	fmt.Fprintln(w, "  comment-edit <post-id> <comment-id> --content <c>")
	fmt.Fprintln(w, "  comment-delete <post-id> <comment-id>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notifications:")
	fmt.Fprintln(w, "  notifications [--unread]                List notifications")
	fmt.Fprintln(w, "  read <notification-id>                  Mark one read")
	fmt.Fprintln(w, "  read-all                                Mark all read")
	fmt.Fprintln(w, "  watch                                   Poll the unread count and serve STATUS_ADDR")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "People and plans:")
	fmt.Fprintln(w, "  recommend | follow <user-id> | unfollow <user-id>")
	fmt.Fprintln(w, "  plans [--search <q>]")
	fmt.Fprintln(w, "  plan-create --name <n> --description <d> --topics a,b --resources x,y")
	fmt.Fprintln(w, "  plan-update <plan-id> [same flags as plan-create]")
	fmt.Fprintln(w, "  plan-delete <plan-id>")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a, err := app.New(ctx, cfg, os.Stderr)
	if err != nil {
		stop()
		log.Fatalf("Failed to start: %v", err)
	}

	runErr := run(a.Context(ctx), a, os.Stdout, os.Args[1:])
	stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := a.Close(closeCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	cancel()

	if runErr != nil {
		if errors.Is(runErr, errUsage) {
			usage(os.Stderr)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
