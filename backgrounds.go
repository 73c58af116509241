package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
)

func getBackgroundByID(ctx context.Context, q connOrTx, imageID int64) (*BackgroundImageRow, error) {
	var row BackgroundImageRow
	if err := q.GetContext(ctx, &row, "SELECT * FROM background_images WHERE id = ?", imageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get background_image by id=%d: %w", imageID, err)
	}
	return &row, nil
}

func getActiveBackground(ctx context.Context, q connOrTx) (*BackgroundImageRow, error) {
	var row BackgroundImageRow
	if err := q.GetContext(ctx, &row, "SELECT * FROM background_images WHERE is_active = ? LIMIT 1", true); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get active background_image: %w", err)
	}
	return &row, nil
}

func listBackgrounds(ctx context.Context, q connOrTx) ([]BackgroundImageRow, error) {
	var rows []BackgroundImageRow
	if err := q.SelectContext(
		ctx,
		&rows,
		"SELECT * FROM background_images ORDER BY created_at DESC, id DESC",
	); err != nil {
		return nil, fmt.Errorf("error Select background_images: %w", err)
	}
	return rows, nil
}

func backgroundResponse(row *BackgroundImageRow) BackgroundImage {
	return BackgroundImage{ID: row.ID, Filename: row.Filename, IsActive: row.IsActive}
}

// serveBackgroundFile writes the stored image as the response, or 404 when
// the backing file has gone missing.
func serveBackgroundFile(c echo.Context, row *BackgroundImageRow) error {
	path := filepath.Join(cfg.ImagesDir, row.Filename)
	if _, err := os.Stat(path); err != nil {
		return errorResponse(c, http.StatusNotFound, "File not found")
	}
	return c.File(path)
}

func activeBackgroundFile(c echo.Context) error {
	img, err := getActiveBackground(c.Request().Context(), db)
	if err != nil {
		c.Logger().Errorf("error getActiveBackground: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if img == nil {
		return errorResponse(c, http.StatusNotFound, "No active background")
	}
	return serveBackgroundFile(c, img)
}

// GET /api/songs/background/active

func apiActiveBackgroundHandler(c echo.Context) error {
	if _, err := currentUser(c, db); err != nil {
		return authErrorResponse(c, err)
	}
	return activeBackgroundFile(c)
}

// GET /api/songs/background/random

func apiRandomBackgroundHandler(c echo.Context) error {
	if _, err := currentUser(c, db); err != nil {
		return authErrorResponse(c, err)
	}
	rows, err := listBackgrounds(c.Request().Context(), db)
	if err != nil {
		c.Logger().Errorf("error listBackgrounds: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if len(rows) == 0 {
		return errorResponse(c, http.StatusNotFound, "No backgrounds available")
	}
	// uniform pick in-process; the active flag does not matter here
	img := rows[rand.Intn(len(rows))]
	return serveBackgroundFile(c, &img)
}

// GET /api/admin/backgrounds

func apiAdminListBackgroundsHandler(c echo.Context) error {
	if _, err := adminUser(c, db); err != nil {
		return authErrorResponse(c, err)
	}
	rows, err := listBackgrounds(c.Request().Context(), db)
	if err != nil {
		c.Logger().Errorf("error listBackgrounds: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	body := make([]BackgroundImage, 0, len(rows))
	for i := range rows {
		body = append(body, backgroundResponse(&rows[i]))
	}
	return c.JSON(http.StatusOK, body)
}

// GET /api/admin/backgrounds/active

func apiAdminActiveBackgroundHandler(c echo.Context) error {
	if _, err := adminUser(c, db); err != nil {
		return authErrorResponse(c, err)
	}
	return activeBackgroundFile(c)
}

// POST /api/admin/backgrounds

func apiAdminUploadBackgroundHandler(c echo.Context) error {
	ctx := c.Request().Context()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		c.Logger().Errorf("error db.BeginTxx: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	defer tx.Rollback()

	if _, err := adminUser(c, tx); err != nil {
		return authErrorResponse(c, err)
	}

	fh, err := c.FormFile("file")
	if err != nil || fh.Filename == "" || safeExtension(fh.Filename, allowedImageExtensions) == "" {
		return errorResponse(c, http.StatusBadRequest, "Invalid file. Allowed: jpg, jpeg, png, gif, webp")
	}
	src, err := fh.Open()
	if err != nil {
		c.Logger().Errorf("error open uploaded file: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	content, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		c.Logger().Errorf("error read uploaded file: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if len(content) == 0 {
		return errorResponse(c, http.StatusBadRequest, "Empty file")
	}

	storedName, err := storeFile(cfg.ImagesDir, fh.Filename, content, allowedImageExtensions)
	if err != nil {
		c.Logger().Errorf("error storeFile: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}

	// uploads start inactive; activation is a separate explicit step
	res, err := tx.ExecContext(
		ctx,
		"INSERT INTO background_images (filename, is_active, created_at) VALUES (?, ?, ?)",
		storedName, false, time.Now(),
	)
	if err != nil {
		removeFile(cfg.ImagesDir, storedName)
		c.Logger().Errorf("error Insert background_images by filename=%s: %s", storedName, err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	imageID, err := res.LastInsertId()
	if err != nil {
		c.Logger().Errorf("error LastInsertId: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if err := tx.Commit(); err != nil {
		removeFile(cfg.ImagesDir, storedName)
		c.Logger().Errorf("error tx.Commit: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, BackgroundImage{ID: imageID, Filename: storedName, IsActive: false})
}

// POST /api/admin/backgrounds/:imageID/activate

func apiAdminActivateBackgroundHandler(c echo.Context) error {
	ctx := c.Request().Context()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		c.Logger().Errorf("error db.BeginTxx: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	defer tx.Rollback()

	if _, err := adminUser(c, tx); err != nil {
		return authErrorResponse(c, err)
	}
	imageID, ok := paramID(c, "imageID")
	if !ok {
		return errorResponse(c, http.StatusNotFound, "Image not found")
	}
	img, err := getBackgroundByID(ctx, tx, imageID)
	if err != nil {
		c.Logger().Errorf("error getBackgroundByID: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if img == nil {
		return errorResponse(c, http.StatusNotFound, "Image not found")
	}

	// deactivate-all plus activate-one commit together, so at most one row
	// ever carries the flag
	if _, err := tx.ExecContext(
		ctx,
		"UPDATE background_images SET is_active = ? WHERE is_active = ?",
		false, true,
	); err != nil {
		c.Logger().Errorf("error deactivate background_images: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if _, err := tx.ExecContext(
		ctx,
		"UPDATE background_images SET is_active = ? WHERE id = ?",
		true, img.ID,
	); err != nil {
		c.Logger().Errorf("error activate background_image id=%d: %s", img.ID, err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if err := tx.Commit(); err != nil {
		c.Logger().Errorf("error tx.Commit: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// DELETE /api/admin/backgrounds/:imageID

func apiAdminDeleteBackgroundHandler(c echo.Context) error {
	ctx := c.Request().Context()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		c.Logger().Errorf("error db.BeginTxx: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	defer tx.Rollback()

	if _, err := adminUser(c, tx); err != nil {
		return authErrorResponse(c, err)
	}
	imageID, ok := paramID(c, "imageID")
	if !ok {
		return errorResponse(c, http.StatusNotFound, "Image not found")
	}
	img, err := getBackgroundByID(ctx, tx, imageID)
	if err != nil {
		c.Logger().Errorf("error getBackgroundByID: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if img == nil {
		return errorResponse(c, http.StatusNotFound, "Image not found")
	}

	if err := removeFile(cfg.ImagesDir, img.Filename); err != nil {
		c.Logger().Errorf("error removeFile: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM background_images WHERE id = ?", img.ID); err != nil {
		c.Logger().Errorf("error Delete background_images by id=%d: %s", img.ID, err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if err := tx.Commit(); err != nil {
		c.Logger().Errorf("error tx.Commit: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, OKResponse{OK: true})
}
