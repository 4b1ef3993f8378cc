package ui

import (
	"fmt"
)

// RoomInfo is the box shown after a room is created.
type RoomInfo struct {
	RoomID  string
	JoinCmd string
	Probe   string
}

func NewRoomInfo(roomID, probeURL string) *RoomInfo {
	return &RoomInfo{
		RoomID:  roomID,
		JoinCmd: "warptalk call --room " + roomID,
		Probe:   probeURL,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:  %s\n%s Join:     %s\n%s Status:   %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconPeer, r.JoinCmd,
		IconWeb, MutedStyle.Render(r.Probe),
	)
	return SuccessBoxStyle.Render(content)
}

func RenderRoomInfo(roomID, probeURL string) {
	fmt.Println(NewRoomInfo(roomID, probeURL).View())
}
