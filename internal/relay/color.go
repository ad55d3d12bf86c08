package relay

import "github.com/zeebo/blake3"

var chatPalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#46a0a8", "#f032e6", "#9a6324",
	"#800000", "#008080", "#000075", "#808000",
}

// ColorFor returns the stable palette color of a user.
func ColorFor(userID string) string {
	sum := blake3.Sum256([]byte(userID))
	return chatPalette[int(sum[0])%len(chatPalette)]
}
