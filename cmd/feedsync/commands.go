package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"feedsync/internal/api"
	"feedsync/internal/app"
	"feedsync/internal/feed"
	"feedsync/internal/media"
	"feedsync/internal/models"
	"feedsync/internal/observability"
)

var errUsage = errors.New("invalid usage")

type command struct {
	needsSession bool
	run          func(ctx context.Context, a *app.App, out io.Writer, args []string) error
}

var commands = map[string]command{
	"login":          {false, cmdLogin},
	"register":       {false, cmdRegister},
	"logout":         {false, cmdLogout},
	"whoami":         {true, cmdWhoami},
	"feed":           {true, cmdFeed},
	"post":           {true, cmdPost},
	"edit":           {true, cmdEdit},
	"delete":         {true, cmdDelete},
	"like":           {true, cmdLike(true)},
	"unlike":         {true, cmdLike(false)},
	"media":          {true, cmdMedia},
	"comments":       {true, cmdComments},
	"comment":        {true, cmdComment},
	"comment-edit":   {true, cmdCommentEdit},
	"comment-delete": {true, cmdCommentDelete},
	"notifications":  {true, cmdNotifications},
	"read":           {true, cmdRead},
	"read-all":       {true, cmdReadAll},
	"watch":          {true, cmdWatch},
	"recommend":      {true, cmdRecommend},
	"follow":         {true, cmdFollow(true)},
	"unfollow":       {true, cmdFollow(false)},
	"plans":          {true, cmdPlans},
	"plan-create":    {true, cmdPlanCreate},
	"plan-update":    {true, cmdPlanUpdate},
	"plan-delete":    {true, cmdPlanDelete},
}

// run dispatches args[0] to its command.
func run(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	if cmd.needsSession {
		if err := a.RequireSession(); err != nil {
			return err
		}
	}
	return cmd.run(ctx, a, out, args[1:])
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parse parses flags and requires exactly n positional arguments, which may
// appear before or after the flags.
func parse(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	var positional []string
	for len(args) > 0 {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
		}
		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
	if len(positional) != n {
		return nil, fmt.Errorf("%w: %s expects %d argument(s), got %d", errUsage, fs.Name(), n, len(positional))
	}
	return positional, nil
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdLogin(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("FEEDSYNC_PASSWORD"), "account password")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	user, err := a.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Signed in as %s <%s>\n", user.Name, user.Email)
	return nil
}

func cmdRegister(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("register")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("FEEDSYNC_PASSWORD"), "account password")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	user, err := a.Register(ctx, models.RegisterRequest{Name: *name, Email: *email, Password: *password})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Registered and signed in as %s <%s>\n", user.Name, user.Email)
	return nil
}

func cmdLogout(ctx context.Context, a *app.App, out io.Writer, _ []string) error {
	if err := a.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Signed out")
	return nil
}

func cmdWhoami(_ context.Context, a *app.App, out io.Writer, _ []string) error {
	u := a.Session.User()
	fmt.Fprintf(out, "%s <%s> (id %s)\n", u.Name, u.Email, u.ID)
	return nil
}

func printPost(out io.Writer, p models.Post, userID string) {
	author := p.UserID
	if p.User != nil && p.User.Name != "" {
		author = p.User.Name
	}
	heart := "♡"
	if p.LikedByUser(userID) {
		heart = "♥"
	}
	fmt.Fprintf(out, "[%s] %s · %s %d · 💬 %d\n", p.ID, author, heart, max(p.LikesCount, 0), len(p.Comments))
	fmt.Fprintf(out, "    %s\n", p.Content)
	for _, u := range p.ImageURLs {
		fmt.Fprintf(out, "    🖼  %s\n", media.FileID(u))
	}
	if p.VideoURL != "" {
		fmt.Fprintf(out, "    🎞  %s\n", media.FileID(p.VideoURL))
	}
}

func loadFeed(ctx context.Context, a *app.App, source feed.Source) (*feed.Feed, error) {
	f := a.Feed(source)
	if err := f.Load(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func cmdFeed(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("feed")
	following := fs.Bool("following", false, "only posts from followed users")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	source := feed.SourceAll
	if *following {
		source = feed.SourceFollowing
	}
	f, err := loadFeed(ctx, a, source)
	if err != nil {
		return err
	}
	posts := f.Posts()
	if len(posts) == 0 {
		fmt.Fprintln(out, "No posts yet")
		return nil
	}
	for _, p := range posts {
		printPost(out, p, a.Session.UserID())
	}
	return nil
}

func readAttachment(path string) (api.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	return api.Attachment{Name: filepath.Base(path), Data: data}, nil
}

func cmdPost(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("post")
	content := fs.String("content", "", "post text")
	var images stringList
	fs.Var(&images, "image", "image file (repeatable)")
	video := fs.String("video", "", "video file")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	attachments := make([]api.Attachment, 0, len(images))
	for _, path := range images {
		att, err := readAttachment(path)
		if err != nil {
			return err
		}
		attachments = append(attachments, att)
	}
	var vid *api.Attachment
	if *video != "" {
		att, err := readAttachment(*video)
		if err != nil {
			return err
		}
		vid = &att
	}

	f := a.Feed(feed.SourceAll)
	if err := f.Create(ctx, *content, attachments, vid); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Posted (%d posts in feed)\n", len(f.Posts()))
	return nil
}

func cmdEdit(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("edit")
	content := fs.String("content", "", "new post text")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	f, err := loadFeed(ctx, a, feed.SourceAll)
	if err != nil {
		return err
	}
	card, err := f.Card(pos[0])
	if err != nil {
		return err
	}
	if err := card.StartEdit(); err != nil {
		return err
	}
	card.SetDraft(*content)
	if err := f.SaveCard(ctx, card); err != nil {
		return err
	}
	fmt.Fprintln(out, "✅ Post updated")
	return nil
}

func cmdDelete(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	pos, err := parse(newFlagSet("delete"), args, 1)
	if err != nil {
		return err
	}
	f, err := loadFeed(ctx, a, feed.SourceAll)
	if err != nil {
		return err
	}
	if err := f.Delete(ctx, pos[0]); err != nil {
		return err
	}
	fmt.Fprintln(out, "✅ Post deleted")
	return nil
}

func cmdLike(liked bool) func(context.Context, *app.App, io.Writer, []string) error {
	name := "unlike"
	if liked {
		name = "like"
	}
	return func(ctx context.Context, a *app.App, out io.Writer, args []string) error {
		pos, err := parse(newFlagSet(name), args, 1)
		if err != nil {
			return err
		}
		f, err := loadFeed(ctx, a, feed.SourceAll)
		if err != nil {
			return err
		}
		card, err := f.Card(pos[0])
		if err != nil {
			return err
		}
		if liked {
			err = card.Like(ctx)
		} else {
			err = card.Unlike(ctx)
		}
		if err != nil {
			return err
		}
		state := card.Likes()
		fmt.Fprintf(out, "liked=%t likes=%d\n", state.Liked, state.Count)
		return nil
	}
}

func cmdMedia(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("media")
	dest := fs.String("out", "", "output file")
	thumb := fs.Int("thumb", 0, "write a WebP thumbnail no larger than this many pixels")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	if *dest == "" {
		return fmt.Errorf("%w: media requires --out", errUsage)
	}

	data, err := a.Media.Fetch(ctx, media.FileID(pos[0]))
	if err != nil {
		return err
	}
	if *thumb > 0 {
		if data, err = media.Thumbnail(data, *thumb); err != nil {
			return err
		}
	}
	if err := os.WriteFile(*dest, data, 0o600); err != nil {
		return fmt.Errorf("write media: %w", err)
	}
	fmt.Fprintf(out, "Wrote %d bytes to %s\n", len(data), *dest)
	return nil
}

func openThread(ctx context.Context, a *app.App, postID string) (*feed.CommentThread, error) {
	t := a.Comments(postID)
	if err := t.Open(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func printComments(out io.Writer, comments []models.Comment) {
	if len(comments) == 0 {
		fmt.Fprintln(out, "No comments yet")
		return
	}
	for _, c := range comments {
		who := c.Username
		if who == "" {
			who = c.UserID
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", c.ID, who, c.Content)
	}
}

func cmdComments(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	pos, err := parse(newFlagSet("comments"), args, 1)
	if err != nil {
		return err
	}
	t, err := openThread(ctx, a, pos[0])
	if err != nil {
		return err
	}
	printComments(out, t.Comments())
	return nil
}

func cmdComment(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("comment")
	content := fs.String("content", "", "comment text")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	t := a.Comments(pos[0])
	t.SetDraft(*content)
	if err := t.Submit(ctx); err != nil {
		return err
	}
	printComments(out, t.Comments())
	return nil
}

func cmdCommentEdit(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("comment-edit")
	content := fs.String("content", "", "new comment text")
	pos, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	t, err := openThread(ctx, a, pos[0])
	if err != nil {
		return err
	}
	if err := t.StartEdit(pos[1]); err != nil {
		return err
	}
	t.SetDraft(*content)
	if err := t.Submit(ctx); err != nil {
		return err
	}
	printComments(out, t.Comments())
	return nil
}

func cmdCommentDelete(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	pos, err := parse(newFlagSet("comment-delete"), args, 2)
	if err != nil {
		return err
	}
	t, err := openThread(ctx, a, pos[0])
	if err != nil {
		return err
	}
	if err := t.Delete(ctx, pos[1]); err != nil {
		return err
	}
	printComments(out, t.Comments())
	return nil
}

func printNotifications(out io.Writer, nc *feed.NotificationCenter) {
	fmt.Fprintf(out, "🔔 %d unread\n", nc.UnreadCount())
	for _, n := range nc.Visible() {
		mark := " "
		if !n.Read {
			mark = "•"
		}
		fmt.Fprintf(out, "%s [%s] %s\n", mark, n.ID, n.Message)
	}
}

func loadNotifications(ctx context.Context, a *app.App) (*feed.NotificationCenter, error) {
	nc := a.Notifications()
	if err := nc.Refresh(ctx); err != nil {
		return nil, err
	}
	return nc, nil
}

func cmdNotifications(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("notifications")
	unread := fs.Bool("unread", false, "only unread notifications")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	nc, err := loadNotifications(ctx, a)
	if err != nil {
		return err
	}
	nc.ShowAll(!*unread)
	printNotifications(out, nc)
	return nil
}

func cmdRead(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	pos, err := parse(newFlagSet("read"), args, 1)
	if err != nil {
		return err
	}
	nc, err := loadNotifications(ctx, a)
	if err != nil {
		return err
	}
	if err := nc.MarkRead(ctx, pos[0]); err != nil {
		return err
	}
	fmt.Fprintf(out, "🔔 %d unread\n", nc.UnreadCount())
	return nil
}

func cmdReadAll(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	if _, err := parse(newFlagSet("read-all"), args, 0); err != nil {
		return err
	}
	nc, err := loadNotifications(ctx, a)
	if err != nil {
		return err
	}
	if err := nc.MarkAllRead(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "🔔 %d unread\n", nc.UnreadCount())
	return nil
}

// cmdWatch polls the unread count and serves the status endpoints until ctx
// is cancelled.
func cmdWatch(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	if _, err := parse(newFlagSet("watch"), args, 0); err != nil {
		return err
	}
	nc, err := loadNotifications(ctx, a)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	last := -1
	nc.Tracker().OnChange(func() {
		mu.Lock()
		defer mu.Unlock()
		if n := nc.UnreadCount(); n != last {
			last = n
			fmt.Fprintf(out, "🔔 %d unread\n", n)
		}
	})

	badge := feed.NewUnreadBadge(nc.Tracker(), a.Config.PollInterval())
	badge.Start(ctx)
	defer badge.Stop()

	srv := a.StatusServer(nc, badge)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	observability.GlobalLogger.Info("shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cmdRecommend(ctx context.Context, a *app.App, out io.Writer, _ []string) error {
	users, err := a.Client.RecommendedUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(out, "No recommendations")
		return nil
	}
	for _, u := range users {
		fmt.Fprintf(out, "[%s] %s\n", u.ID, u.Name)
	}
	return nil
}

func cmdFollow(follow bool) func(context.Context, *app.App, io.Writer, []string) error {
	name := "unfollow"
	if follow {
		name = "follow"
	}
	return func(ctx context.Context, a *app.App, out io.Writer, args []string) error {
		pos, err := parse(newFlagSet(name), args, 1)
		if err != nil {
			return err
		}
		if follow {
			err = a.Client.FollowUser(ctx, pos[0])
		} else {
			err = a.Client.UnfollowUser(ctx, pos[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✅ %sed %s\n", name, pos[0])
		return nil
	}
}

func printPlans(out io.Writer, plans []models.LearningPlan) {
	if len(plans) == 0 {
		fmt.Fprintln(out, "No learning plans")
		return
	}
	for _, p := range plans {
		fmt.Fprintf(out, "[%s] %s: %s\n", p.ID, p.Name, p.Description)
		fmt.Fprintf(out, "    topics: %s\n", strings.Join(p.Topics, ", "))
		fmt.Fprintf(out, "    resources: %s\n", strings.Join(p.Resources, ", "))
	}
}

func cmdPlans(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	fs := newFlagSet("plans")
	search := fs.String("search", "", "filter by name")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	l := a.LearningPlans()
	if err := l.Load(ctx); err != nil {
		return err
	}
	printPlans(out, l.Search(*search))
	return nil
}

type planFlags struct {
	name, description, topics, resources *string
	fs                                   *flag.FlagSet
}

func newPlanFlags(name string) planFlags {
	fs := newFlagSet(name)
	return planFlags{
		fs:          fs,
		name:        fs.String("name", "", "plan name"),
		description: fs.String("description", "", "plan description"),
		topics:      fs.String("topics", "", "comma-separated topics"),
		resources:   fs.String("resources", "", "comma-separated resources"),
	}
}

// apply overwrites fields of p with the flags that were given.
func (f planFlags) apply(p *models.LearningPlan) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			p.Name = *f.name
		case "description":
			p.Description = *f.description
		case "topics":
			p.Topics = models.SplitList(*f.topics)
		case "resources":
			p.Resources = models.SplitList(*f.resources)
		}
	})
}

func cmdPlanCreate(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	pf := newPlanFlags("plan-create")
	if _, err := parse(pf.fs, args, 0); err != nil {
		return err
	}
	var plan models.LearningPlan
	pf.apply(&plan)

	l := a.LearningPlans()
	if err := l.Create(ctx, plan); err != nil {
		return err
	}
	printPlans(out, l.Plans())
	return nil
}

func cmdPlanUpdate(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	pf := newPlanFlags("plan-update")
	pos, err := parse(pf.fs, args, 1)
	if err != nil {
		return err
	}
	l := a.LearningPlans()
	if err := l.Load(ctx); err != nil {
		return err
	}

	var plan models.LearningPlan
	found := false
	for _, p := range l.Plans() {
		if p.ID == pos[0] {
			plan, found = p, true
			break
		}
	}
	if !found {
		return models.NewNotFoundError("Learning plan", pos[0])
	}
	pf.apply(&plan)

	if err := l.Update(ctx, pos[0], plan); err != nil {
		return err
	}
	printPlans(out, l.Plans())
	return nil
}

func cmdPlanDelete(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	pos, err := parse(newFlagSet("plan-delete"), args, 1)
	if err != nil {
		return err
	}
	l := a.LearningPlans()
	if err := l.Delete(ctx, pos[0]); err != nil {
		return err
	}
	printPlans(out, l.Plans())
	return nil
}
