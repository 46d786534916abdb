// Package greeting builds the morning greeting text and its mention list.
package greeting

import (
	"fmt"
	"html"
	"math/rand/v2"
	"strings"

	"filterbot/backend/internal/models"
)

var shayaris = []string{
	"🌞 सुबह की धूप में तुम्हारा नाम लिखूंगा,\n" +
		"ताकि हर किरण तुम्हें गुड मॉर्निंग कहे! 🌼\n" +
		"Good Morning Everyone! 🌸✨",

	"🌅 मोरनिंग हुई तो सबको जगा दूंगा,\n" +
		"तुम्हारी मुस्कान के लिए इंतज़ार करूंगा! 💫\n" +
		"Good Morning Beautiful Souls! 🌟😊",

	"🌻 सूरज ने आज भी तुम्हारे लिए खिड़की खोली है,\n" +
		"उठो और इस नए दिन को गले लगाओ! 🌈\n" +
		"Good Morning Champions! 🏆💫",

	"🌼 सुबह की ठंडी हवा में तुम्हारा नाम फिसफिसाऊंगा,\n" +
		"ताकि प्यार से जग जाओ सब! 💕\n" +
		"Good Morning Sweethearts! 🥰🌺",

	"✨ नई सुबह, नए सपने, नई शुरुआत!\n" +
		"आज का दिन हमारे साथ मुस्कुराए! 🌟\n" +
		"Good Morning Dreamers! 🌙➡️☀️",

	"🌸 सुबह की पहली किरण तुम्हारे दरवाज़े पर खड़ी है,\n" +
		"उठो और इस खुशियों भरे दिन का स्वागत करो! 🎉\n" +
		"Good Morning Stars! ⭐✨",
}

// Pick returns a random greeting verse.
func Pick() string {
	return shayaris[rand.IntN(len(shayaris))]
}

// Mention renders m as @username, or as an HTML link to the user id when there is no username.
func Mention(m models.Member) string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if name == "" {
		name = fmt.Sprintf("user %d", m.ID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, m.ID, html.EscapeString(name))
}

// Mentions renders up to limit members, skipping bots, duplicates and the excluded user id
// (0 excludes nobody). Input order is kept.
func Mentions(members []models.Member, exclude int64, limit int) []string {
	seen := make(map[int64]struct{}, len(members))
	out := make([]string, 0, limit)
	for _, m := range members {
		if len(out) >= limit {
			break
		}
		if m.IsBot || (exclude != 0 && m.ID == exclude) {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, Mention(m))
	}
	return out
}

// Compose joins the optional salutation, mention line and verse with blank lines.
// greetee is the invoking user's first name for the manual command and empty for the passive one;
// it is inserted as given, so HTML callers escape it first.
func Compose(greetee string, mentions []string, verse string) string {
	parts := make([]string, 0, 3)
	if greetee != "" {
		parts = append(parts, fmt.Sprintf("Good morning %s! 🌞", greetee))
	}
	if len(mentions) > 0 {
		parts = append(parts, strings.Join(mentions, " "))
	}
	parts = append(parts, verse)
	return strings.Join(parts, "\n\n")
}
