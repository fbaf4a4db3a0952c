package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"feedsync/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/golang-jwt/jwt/v5"
)

// Backend is an in-memory stand-in for the feed service. State fields may be
// read and seeded under Lock/Unlock.
type Backend struct {
	sync.Mutex

	URL string
	App *fiber.App

	Users         map[string]models.User
	Passwords     map[string]string
	Posts         []models.Post
	Comments      []models.Comment
	Notifications []models.Notification
	Plans         []models.LearningPlan
	Media         map[string][]byte
	Following     map[string][]string

	// UnreadCountOverride, when set, replaces the computed unread count.
	UnreadCountOverride *int

	calls    []string
	failures map[string][]int
	holds    map[string]chan struct{}
}

// NewBackend starts the fake service and registers cleanup on t.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		Users:     map[string]models.User{},
		Passwords: map[string]string{},
		Media:     map[string][]byte{},
		Following: map[string][]string{},
		failures:  map[string][]int{},
		holds:     map[string]chan struct{}{},
	}
	b.App = fiber.New(fiber.Config{DisableStartupMessage: true})
	b.routes()

	srv := httptest.NewServer(adaptor.FiberApp(b.App))
	b.URL = srv.URL
	t.Cleanup(srv.Close)
	return b
}

// AddUser registers u with password and returns a token for it.
func (b *Backend) AddUser(u models.User, password string) string {
	b.Lock()
	defer b.Unlock()
	b.Users[u.ID] = u
	b.Passwords[u.Email] = password
	return MintToken(u.ID, time.Hour)
}

// FailNext makes the next request matching "METHOD /path" answer with status.
// Calls stack; each failure is consumed once.
func (b *Backend) FailNext(key string, status int) {
	b.Lock()
	defer b.Unlock()
	b.failures[key] = append(b.failures[key], status)
}

// Hold blocks requests matching "METHOD /path" until the returned release is called.
func (b *Backend) Hold(key string) (release func()) {
	ch := make(chan struct{})
	b.Lock()
	b.holds[key] = ch
	b.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.Lock()
			delete(b.holds, key)
			b.Unlock()
			close(ch)
		})
	}
}

// Calls returns every "METHOD /path" received so far.
func (b *Backend) Calls() []string {
	b.Lock()
	defer b.Unlock()
	return append([]string(nil), b.calls...)
}

// CallCount returns how many times key was requested.
func (b *Backend) CallCount(key string) int {
	n := 0
	for _, c := range b.Calls() {
		if c == key {
			n++
		}
	}
	return n
}

func (b *Backend) intercept(c *fiber.Ctx) error {
	key := c.Method() + " " + c.Path()

	b.Lock()
	b.calls = append(b.calls, key)
	var status int
	if queued := b.failures[key]; len(queued) > 0 {
		status = queued[0]
		b.failures[key] = queued[1:]
	}
	hold := b.holds[key]
	b.Unlock()

	if hold != nil {
		<-hold
	}
	if status != 0 {
		return c.Status(status).JSON(fiber.Map{"message": fmt.Sprintf("injected %d", status)})
	}
	return c.Next()
}

func (b *Backend) auth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(TokenSecret), nil
	})
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	c.Locals("userID", claims.Subject)
	return c.Next()
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}

func (b *Backend) routes() {
	b.App.Use(b.intercept)

	auth := b.App.Group("/api/auth")
	auth.Post("/login", b.login)
	auth.Post("/register", b.register)

	api := b.App.Group("/api", b.auth)

	api.Get("/posts", b.listPosts)
	api.Get("/posts/following", b.followingPosts)
	api.Get("/posts/media/:fileID", b.media)
	api.Post("/posts", b.createPost)
	api.Put("/posts/:id", b.updatePost)
	api.Delete("/posts/:id", b.deletePost)
	api.Post("/posts/:id/like", b.like(true))
	api.Post("/posts/:id/unlike", b.like(false))

	api.Post("/comments", b.createComment)
	api.Get("/comments/post/:postID", b.listComments)
	api.Put("/comments/:id", b.updateComment)
	api.Delete("/comments/:id", b.deleteComment)

	api.Get("/notifications", b.listNotifications(false))
	api.Get("/notifications/unread", b.listNotifications(true))
	api.Get("/notifications/unread-count", b.unreadCount)
	api.Put("/notifications/read-all", b.readAll)
	api.Put("/notifications/:id/read", b.readOne)

	api.Get("/users/recommendations", b.recommendations)
	api.Post("/users/follow/:id", b.follow(true))
	api.Post("/users/unfollow/:id", b.follow(false))

	api.Get("/learningplans/my", b.myPlans)
	api.Post("/learningplans", b.createPlan)
	api.Put("/learningplans/:id", b.updatePlan)
	api.Delete("/learningplans/:id", b.deletePlan)
}

func (b *Backend) login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body"})
	}
	b.Lock()
	defer b.Unlock()
	if pw, ok := b.Passwords[req.Email]; !ok || pw != req.Password {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid credentials"})
	}
	for _, u := range b.Users {
		if u.Email == req.Email {
			return c.JSON(models.AuthResponse{Token: MintToken(u.ID, time.Hour), User: u})
		}
	}
	return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid credentials"})
}

func (b *Backend) register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body"})
	}
	b.Lock()
	defer b.Unlock()
	if _, exists := b.Passwords[req.Email]; exists {
		return c.Status(http.StatusConflict).JSON(fiber.Map{"message": "Email already registered"})
	}
	u := models.User{ID: NextID("u"), Name: req.Name, Email: req.Email}
	b.Users[u.ID] = u
	b.Passwords[u.Email] = req.Password
	return c.Status(http.StatusCreated).JSON(models.AuthResponse{Token: MintToken(u.ID, time.Hour), User: u})
}

func (b *Backend) listPosts(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	return c.JSON(append([]models.Post{}, b.Posts...))
}

func (b *Backend) followingPosts(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	followed := map[string]bool{}
	for _, id := range b.Following[userID(c)] {
		followed[id] = true
	}
	out := []models.Post{}
	for _, p := range b.Posts {
		if followed[p.UserID] {
			out = append(out, p)
		}
	}
	return c.JSON(out)
}

func (b *Backend) media(c *fiber.Ctx) error {
	b.Lock()
	data, ok := b.Media[c.Params("fileID")]
	b.Unlock()
	if !ok {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "File not found"})
	}
	c.Set(fiber.HeaderContentType, http.DetectContentType(data))
	return c.Send(data)
}

func (b *Backend) createPost(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Expected multipart form"})
	}
	content := strings.Join(form.Value["content"], "")

	b.Lock()
	defer b.Unlock()
	uid := userID(c)
	author := b.Users[uid]
	post := models.Post{
		ID:        NextID("p"),
		UserID:    uid,
		User:      &author,
		Content:   content,
		CreatedAt: models.Timestamp{Time: time.Now().UTC()},
		LikedBy:   []string{},
	}
	for _, fh := range form.File["images"] {
		id := NextID("m")
		b.Media[id] = readPart(fh)
		post.ImageURLs = append(post.ImageURLs, "/api/posts/media/"+id)
	}
	if files := form.File["video"]; len(files) > 0 {
		id := NextID("m")
		b.Media[id] = readPart(files[0])
		post.VideoURL = "/api/posts/media/" + id
	}
	b.Posts = append([]models.Post{post}, b.Posts...)
	return c.Status(http.StatusCreated).JSON(post)
}

func (b *Backend) findPost(id string) int {
	for i := range b.Posts {
		if b.Posts[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Backend) updatePost(c *fiber.Ctx) error {
	var req models.UpdatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body"})
	}
	b.Lock()
	defer b.Unlock()
	i := b.findPost(c.Params("id"))
	if i < 0 {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Post not found"})
	}
	if b.Posts[i].UserID != userID(c) {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"message": "Not the author"})
	}
	b.Posts[i].Content = req.Content
	return c.JSON(b.Posts[i])
}

func (b *Backend) deletePost(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	i := b.findPost(c.Params("id"))
	if i < 0 {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Post not found"})
	}
	b.Posts = append(b.Posts[:i], b.Posts[i+1:]...)
	return c.SendStatus(http.StatusNoContent)
}

func (b *Backend) like(liked bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b.Lock()
		defer b.Unlock()
		i := b.findPost(c.Params("id"))
		if i < 0 {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Post not found"})
		}
		uid := userID(c)
		p := &b.Posts[i]
		has := p.LikedByUser(uid)
		switch {
		case liked && !has:
			p.LikedBy = append(p.LikedBy, uid)
			p.LikesCount++
		case !liked && has:
			out := p.LikedBy[:0]
			for _, id := range p.LikedBy {
				if id != uid {
					out = append(out, id)
				}
			}
			p.LikedBy = out
			p.LikesCount--
		}
		return c.SendStatus(http.StatusOK)
	}
}

func (b *Backend) createComment(c *fiber.Ctx) error {
	var req models.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body"})
	}
	b.Lock()
	defer b.Unlock()
	author := b.Users[userID(c)]
	cm := models.Comment{
		ID:        NextID("c"),
		PostID:    req.PostID,
		UserID:    author.ID,
		Username:  author.Name,
		Content:   req.Content,
		CreatedAt: models.Timestamp{Time: time.Now().UTC()},
	}
	b.Comments = append(b.Comments, cm)
	return c.Status(http.StatusCreated).JSON(cm)
}

func (b *Backend) listComments(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	out := []models.Comment{}
	for _, cm := range b.Comments {
		if cm.PostID == c.Params("postID") {
			out = append(out, cm)
		}
	}
	return c.JSON(out)
}

func (b *Backend) findComment(id string) int {
	for i := range b.Comments {
		if b.Comments[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Backend) updateComment(c *fiber.Ctx) error {
	var req models.UpdateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body"})
	}
	b.Lock()
	defer b.Unlock()
	i := b.findComment(c.Params("id"))
	if i < 0 {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Comment not found"})
	}
	b.Comments[i].Content = req.Content
	return c.JSON(b.Comments[i])
}

func (b *Backend) deleteComment(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	i := b.findComment(c.Params("id"))
	if i < 0 {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Comment not found"})
	}
	b.Comments = append(b.Comments[:i], b.Comments[i+1:]...)
	return c.SendStatus(http.StatusNoContent)
}

func (b *Backend) listNotifications(unreadOnly bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b.Lock()
		defer b.Unlock()
		out := []models.Notification{}
		for _, n := range b.Notifications {
			if unreadOnly && n.Read {
				continue
			}
			out = append(out, n)
		}
		return c.JSON(out)
	}
}

func (b *Backend) unreadCount(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	if b.UnreadCountOverride != nil {
		return c.JSON(*b.UnreadCountOverride)
	}
	return c.JSON(models.CountUnread(b.Notifications))
}

func (b *Backend) readOne(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	for i := range b.Notifications {
		if b.Notifications[i].ID == c.Params("id") {
			b.Notifications[i].Read = true
			return c.JSON(b.Notifications[i])
		}
	}
	return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Notification not found"})
}

func (b *Backend) readAll(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	for i := range b.Notifications {
		b.Notifications[i].Read = true
	}
	return c.SendStatus(http.StatusNoContent)
}

func (b *Backend) recommendations(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	out := []models.User{}
	for id, u := range b.Users {
		if id != userID(c) {
			out = append(out, u)
		}
	}
	return c.JSON(out)
}

func (b *Backend) follow(on bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b.Lock()
		defer b.Unlock()
		uid, target := userID(c), c.Params("id")
		if _, ok := b.Users[target]; !ok {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "User not found"})
		}
		list := b.Following[uid][:0:0]
		for _, id := range b.Following[uid] {
			if id != target {
				list = append(list, id)
			}
		}
		if on {
			list = append(list, target)
		}
		b.Following[uid] = list
		return c.SendStatus(http.StatusOK)
	}
}

func (b *Backend) myPlans(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	out := []models.LearningPlan{}
	for _, p := range b.Plans {
		if p.UserID == userID(c) {
			out = append(out, p)
		}
	}
	return c.JSON(out)
}

func (b *Backend) createPlan(c *fiber.Ctx) error {
	var plan models.LearningPlan
	if err := c.BodyParser(&plan); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body"})
	}
	b.Lock()
	defer b.Unlock()
	plan.ID = NextID("lp")
	plan.UserID = userID(c)
	b.Plans = append(b.Plans, plan)
	return c.Status(http.StatusCreated).JSON(plan)
}

func (b *Backend) findPlan(id string) int {
	for i := range b.Plans {
		if b.Plans[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Backend) updatePlan(c *fiber.Ctx) error {
	var plan models.LearningPlan
	if err := c.BodyParser(&plan); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body"})
	}
	b.Lock()
	defer b.Unlock()
	i := b.findPlan(c.Params("id"))
	if i < 0 {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Learning plan not found"})
	}
	plan.ID = b.Plans[i].ID
	plan.UserID = b.Plans[i].UserID
	b.Plans[i] = plan
	return c.JSON(plan)
}

func (b *Backend) deletePlan(c *fiber.Ctx) error {
	b.Lock()
	defer b.Unlock()
	i := b.findPlan(c.Params("id"))
	if i < 0 {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Learning plan not found"})
	}
	b.Plans = append(b.Plans[:i], b.Plans[i+1:]...)
	return c.SendStatus(http.StatusNoContent)
}
