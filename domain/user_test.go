package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongPassword = "correct-horse-battery-staple-91"

func TestNewUser(t *testing.T) {
	t.Run("rejects invalid usernames", func(t *testing.T) {
		for name, username := range map[string]string{
			"too short":        "ab",
			"too long":         "this_username_is_way_too_long_to_pass",
			"whitespace":       "alice smith",
			"non alphanumeric": "alice!",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := NewUser(UserConfig{
					ID:            uuid.New(),
					Username:      username,
					PlainPassword: strongPassword,
				})
				assert.Error(t, err)
			})
		}
	})

	t.Run("rejects weak passwords", func(t *testing.T) {
		_, err := NewUser(UserConfig{
			ID:            uuid.New(),
			Username:      "alice",
			PlainPassword: "password1",
		})
		assert.EqualError(t, err, "weak password")
	})

	t.Run("hashes and verifies the password", func(t *testing.T) {
		user, err := NewUser(UserConfig{
			ID:            uuid.New(),
			Username:      "alice",
			PlainPassword: strongPassword,
		})
		require.NoError(t, err)

		assert.NotEqual(t, strongPassword, user.PasswordHash)
		assert.True(t, user.VerifyPassword(strongPassword))
		assert.False(t, user.VerifyPassword("wrong password"))
	})
}
