package chatscmder

import (
	"sort"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/utils"
)

// sortByUpdated orders chats by update time, newest first. Chats with equal
// or unparseable timestamps keep their server order.
func sortByUpdated(chats []client.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		return utils.ParseTimestamp(chats[i].UpdatedAt).After(utils.ParseTimestamp(chats[j].UpdatedAt))
	})
}
