package gamification

import "amc-progress-service/internal/domain"

// DefaultAvatarID is owned by every user from the start.
const DefaultAvatarID = "pencil"

// Avatars is the coin shop catalog.
var Avatars = []domain.Avatar{
	{ID: DefaultAvatarID, Emoji: "✏️", Name: "Pencil", Cost: 0},
	{ID: "owl", Emoji: "🦉", Name: "Night Owl", Cost: 50},
	{ID: "fox", Emoji: "🦊", Name: "Clever Fox", Cost: 100},
	{ID: "robot", Emoji: "🤖", Name: "Calculator Bot", Cost: 200},
	{ID: "wizard", Emoji: "🧙", Name: "Proof Wizard", Cost: 400},
	{ID: "dragon", Emoji: "🐉", Name: "Olympiad Dragon", Cost: 800},
}

// FindAvatar looks up an avatar by id.
func FindAvatar(id string) (domain.Avatar, bool) {
	for _, a := range Avatars {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Avatar{}, false
}
