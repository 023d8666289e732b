package store

import (
	"context"
	"strings"
	"time"

	"github.com/andrewanujbusiness/messenger/internal/models"
)

// seedPasswordHash is the bcrypt hash of "password".
const seedPasswordHash = "$2a$10$92IXUNpkjO0rOQ5byMi.Ye4oKoEa3Ro9llC/.og/at2.uheWG/igi"

// SeedUsers returns the demo accounts every backend starts with.
func SeedUsers() []models.User {
	return []models.User{
		{
			ID:           "1",
			Username:     "alice",
			PasswordHash: seedPasswordHash,
			Name:         "Alice Johnson",
			Avatar:       "https://i.pravatar.cc/150?img=1",
			Status:       "Hey there! I am using iMessage Clone",
		},
		{
			ID:           "2",
			Username:     "bob",
			PasswordHash: seedPasswordHash,
			Name:         "Bob Smith",
			Avatar:       "https://i.pravatar.cc/150?img=2",
			Status:       "Available",
		},
		{
			ID:           "3",
			Username:     "charlie",
			PasswordHash: seedPasswordHash,
			Name:         "Charlie Brown",
			Avatar:       "https://i.pravatar.cc/150?img=3",
			Status:       "In a meeting",
		},
	}
}

type seedLine struct {
	id, sender, text string
	ago              time.Duration
}

var demoConversations = map[string][]seedLine{
	"1-2": {
		{"1", "1", "Hey Bob! How are you doing?", 3600 * time.Second},
		{"2", "2", "Hi Alice! I'm doing great, thanks for asking. How about you?", 3500 * time.Second},
		{"3", "1", "Pretty good! Are you free for coffee this weekend?", 3400 * time.Second},
		{"4", "2", "Absolutely! Saturday at 2 PM works for me.", 3300 * time.Second},
	},
	"1-3": {
		{"5", "1", "Charlie, did you finish the project?", 7200 * time.Second},
		{"6", "3", "Almost done! Should be ready by tomorrow.", 7100 * time.Second},
		{"7", "1", "Perfect! Looking forward to seeing it.", 7000 * time.Second},
	},
	"2-3": {
		{"8", "2", "Charlie, want to grab lunch?", 1800 * time.Second},
		{"9", "3", "Sure! What do you have in mind?", 1700 * time.Second},
		{"10", "2", "How about that new pizza place downtown?", 1600 * time.Second},
		{"11", "3", "Sounds great! See you there at noon.", 1500 * time.Second},
	},
}

// DemoConversations builds the seeded histories relative to now.
func DemoConversations(now time.Time) map[string][]models.Message {
	out := make(map[string][]models.Message, len(demoConversations))
	for key, lines := range demoConversations {
		parts := strings.SplitN(key, "-", 2)
		msgs := make([]models.Message, 0, len(lines))
		for _, l := range lines {
			receiver := parts[0]
			if receiver == l.sender {
				receiver = parts[1]
			}
			msgs = append(msgs, models.Message{
				ID:             l.id,
				ConversationID: key,
				SenderID:       l.sender,
				ReceiverID:     receiver,
				Text:           l.text,
				Timestamp:      now.Add(-l.ago).UnixMilli(),
			})
		}
		out[key] = msgs
	}
	return out
}

// userDirectory is a read-only, in-process UserStore over a fixed account list.
type userDirectory struct {
	users []models.User
}

func newUserDirectory(users []models.User) *userDirectory {
	return &userDirectory{users: users}
}

// GetUserByUsername retrieves a user by exact username.
func (d *userDirectory) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	for i := range d.users {
		if d.users[i].Username == username {
			u := d.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

// GetUserByID retrieves a user by ID.
func (d *userDirectory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	for i := range d.users {
		if d.users[i].ID == id {
			u := d.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

// ListUsers returns every account.
func (d *userDirectory) ListUsers(ctx context.Context) ([]models.User, error) {
	out := make([]models.User, len(d.users))
	copy(out, d.users)
	return out, nil
}

func (d *userDirectory) count() int64 {
	return int64(len(d.users))
}
