package handlers

import (
	"context"

	"github.com/dextop-world/dextop/pkg/wire"
)

// DesktopStateUpdate applies a room snapshot.
func DesktopStateUpdate(ctx context.Context, deps Deps, auth AuthContext, req wire.DesktopStateUpdatePayload) EventResult {
	du, err := deps.Members().ApplyDesktop(auth.SocketID(), roomRef(req.RoomID), req.DesktopState)
	if err != nil {
		return errorResult(err)
	}
	r := successResult()
	desktopResult(&r, auth, du)
	return r
}

// DextopStateUpdate applies a dextop snapshot. Accepted changes are
// persisted for the dextop owner.
func DextopStateUpdate(ctx context.Context, deps Deps, auth AuthContext, req wire.DextopStateUpdatePayload) EventResult {
	du, err := deps.Members().ApplyDesktop(auth.SocketID(), dextopRef(req.DextopID), req.DesktopState)
	if err != nil {
		return errorResult(err)
	}
	r := successResult()
	desktopResult(&r, auth, du)
	return r
}
