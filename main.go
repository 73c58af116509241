package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/urfave/cli/v3"
)

var (
	db  *sqlx.DB
	cfg *Config
)

func errorResponse(c echo.Context, code int, detail string) error {
	c.Logger().Debugf("error: status=%d, detail=%s", code, detail)
	return c.JSON(code, ErrorResponse{Detail: detail})
}

func newRouter() *echo.Echo {
	e := echo.New()
	e.Debug = true
	e.Logger.SetLevel(log.DEBUG)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/health", apiHealthHandler)

	e.POST("/api/auth/login", apiLoginHandler)
	e.POST("/api/auth/register", apiRegisterHandler)
	e.GET("/api/auth/registration-allowed", apiRegistrationAllowedHandler)
	e.GET("/api/auth/me", apiMeHandler)

	e.GET("/api/songs", apiListSongsHandler)
	e.GET("/api/songs/background/active", apiActiveBackgroundHandler)
	e.GET("/api/songs/background/random", apiRandomBackgroundHandler)
	e.GET("/api/songs/settings/auto-change-bg", apiAutoChangeBackgroundHandler)
	e.GET("/api/songs/:songID/stream", apiStreamSongHandler)
	e.POST("/api/songs/:songID/love", apiLoveSongHandler)
	e.DELETE("/api/songs/:songID/love", apiUnloveSongHandler)

	e.GET("/api/admin/songs", apiAdminListSongsHandler)
	e.POST("/api/admin/songs", apiAdminUploadSongHandler)
	e.PATCH("/api/admin/songs/:songID", apiAdminUpdateSongHandler)
	e.DELETE("/api/admin/songs/:songID", apiAdminDeleteSongHandler)

	e.GET("/api/admin/backgrounds", apiAdminListBackgroundsHandler)
	e.POST("/api/admin/backgrounds", apiAdminUploadBackgroundHandler)
	e.GET("/api/admin/backgrounds/active", apiAdminActiveBackgroundHandler)
	e.POST("/api/admin/backgrounds/:imageID/activate", apiAdminActivateBackgroundHandler)
	e.DELETE("/api/admin/backgrounds/:imageID", apiAdminDeleteBackgroundHandler)

	e.GET("/api/admin/users", apiAdminListUsersHandler)
	e.DELETE("/api/admin/users/:userID", apiAdminDeleteUserHandler)

	e.GET("/api/admin/settings", apiAdminGetSettingsHandler)
	e.PATCH("/api/admin/settings", apiAdminUpdateSettingsHandler)

	if st, err := os.Stat(cfg.StaticDir); err == nil && st.IsDir() {
		e.Static("/", cfg.StaticDir)
	}

	return e
}

// GET /health

func apiHealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// bootstrapDefaultAdmin creates the admin/admin account on an empty users
// table. Only wired to the serve command, and only when the config opts in.
func bootstrapDefaultAdmin(ctx context.Context) error {
	var count int
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return fmt.Errorf("error Get users count: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := generatePasswordHash(defaultAdminPwd)
	if err != nil {
		return fmt.Errorf("error generatePasswordHash: %w", err)
	}
	if _, err := db.ExecContext(
		ctx,
		"INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)",
		"admin", hash, roleAdmin, time.Now(),
	); err != nil {
		return fmt.Errorf("error Insert default admin: %w", err)
	}
	log.Warn("created default admin account, change its password immediately")
	return nil
}

func openDB(ctx context.Context) error {
	var err error
	db, err = connectDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect db: %w", err)
	}
	if err := initSchema(ctx, db, cfg.Database.Driver); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, _ *cli.Command) error {
	if err := openDB(ctx); err != nil {
		return err
	}
	defer db.Close()

	for _, dir := range []string{cfg.UploadDir, cfg.ImagesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}

	if cfg.CreateDefaultAdmin {
		if err := bootstrapDefaultAdmin(ctx); err != nil {
			return err
		}
	}

	e := newRouter()
	return e.Start(":" + cfg.ListenPort)
}

func runCreateAdmin(ctx context.Context, cmd *cli.Command) error {
	username := cmd.String("username")
	password := cmd.String("password")
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}

	if err := openDB(ctx); err != nil {
		return err
	}
	defer db.Close()

	existing, err := getUserByUsername(ctx, db, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("user %s already exists", username)
	}
	hash, err := generatePasswordHash(password)
	if err != nil {
		return fmt.Errorf("error generatePasswordHash: %w", err)
	}
	if _, err := db.ExecContext(
		ctx,
		"INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)",
		username, hash, roleAdmin, time.Now(),
	); err != nil {
		return fmt.Errorf("error Insert user: %w", err)
	}
	fmt.Printf("created admin user %s\n", username)
	return nil
}

func runListUsers(ctx context.Context, _ *cli.Command) error {
	if err := openDB(ctx); err != nil {
		return err
	}
	defer db.Close()

	users, err := listUsers(ctx, db)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func main() {
	var err error
	cfg, err = loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %s", err)
	}

	cmd := &cli.Command{
		Name:   "nivplayer",
		Usage:  "self-hosted music player service",
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the API server",
				Action: runServe,
			},
			{
				Name:  "create-admin",
				Usage: "create an admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "admin username"},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "admin password"},
				},
				Action: runCreateAdmin,
			},
			{
				Name:   "list-users",
				Usage:  "print all accounts",
				Action: runListUsers,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("%s", err)
	}
}
