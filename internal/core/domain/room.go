package domain

import "strings"

// RoomKind is the addressing scheme of a room target.
type RoomKind string

const (
	RoomUser          RoomKind = "user"
	RoomModel         RoomKind = "model"
	RoomAuthenticated RoomKind = "authenticated"
	RoomAdmin         RoomKind = "admin"
	RoomCustom        RoomKind = "custom"
)

// RoomTarget is a logical channel name used both as a map key in the
// gateway and as a wire value on the backplane. Construct targets with the
// functions below; routing code never concatenates raw strings.
type RoomTarget string

const (
	userPrefix  = "user:"
	modelPrefix = "model:"

	// AuthenticatedRoom receives broadcast-strategy events; every
	// authenticated connection is joined to it.
	AuthenticatedRoom RoomTarget = "authenticated"

	// AdminRoom is joined only by connections whose identity carries the
	// admin flag at handshake time.
	AdminRoom RoomTarget = "admin"
)

// UserRoom returns the per-identity room for a user id.
func UserRoom(userID string) RoomTarget {
	return RoomTarget(userPrefix + userID)
}

// ModelRoom returns the opt-in subscription room for a model name.
func ModelRoom(model string) RoomTarget {
	return RoomTarget(modelPrefix + model)
}

// CustomRoom wraps a resolver-supplied room name verbatim.
func CustomRoom(name string) RoomTarget {
	return RoomTarget(name)
}

// ParseRoom splits a target back into its kind and key. Names that match no
// known scheme are reported as custom with the whole name as key.
func ParseRoom(r RoomTarget) (RoomKind, string) {
	s := string(r)
	switch {
	case r == AuthenticatedRoom:
		return RoomAuthenticated, ""
	case r == AdminRoom:
		return RoomAdmin, ""
	case strings.HasPrefix(s, userPrefix):
		return RoomUser, s[len(userPrefix):]
	case strings.HasPrefix(s, modelPrefix):
		return RoomModel, s[len(modelPrefix):]
	}
	return RoomCustom, s
}
