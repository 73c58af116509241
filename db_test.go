package main

import (
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDuplicateEntryErr(t *testing.T) {
	newTestApp(t)

	res, err := db.Exec(
		"INSERT INTO songs (filename, title, artist, created_at) VALUES (?, ?, ?, ?)",
		"aaaa.mp3", "A", "B", time.Now(),
	)
	require.NoError(t, err)
	songID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = db.Exec(
		"INSERT INTO song_loves (user_id, song_id, created_at) VALUES (?, ?, ?)",
		1, songID, time.Now(),
	)
	require.NoError(t, err)

	// second insert of the same (user, song) pair violates the unique key
	_, err = db.Exec(
		"INSERT INTO song_loves (user_id, song_id, created_at) VALUES (?, ?, ?)",
		1, songID, time.Now(),
	)
	require.Error(t, err)
	assert.True(t, isDuplicateEntryErr(err))

	assert.True(t, isDuplicateEntryErr(&mysql.MySQLError{Number: 1062}))
	assert.False(t, isDuplicateEntryErr(&mysql.MySQLError{Number: 1064}))
	assert.False(t, isDuplicateEntryErr(errors.New("some other error")))
	assert.False(t, isDuplicateEntryErr(nil))
}
