package common

import "context"

type ctxKey string

const (
	adminKey     ctxKey = "auth/admin"
	adminSlotKey ctxKey = "auth/admin-slot"
)

// Admin describes the authenticated administrator of a request.
type Admin struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AdminSlot lets outer middleware observe an admin authenticated further down the chain.
type AdminSlot struct {
	Admin Admin
	Set   bool
}

// WithAdminSlot installs an empty slot on the context.
func WithAdminSlot(ctx context.Context) (context.Context, *AdminSlot) {
	slot := &AdminSlot{}
	return context.WithValue(ctx, adminSlotKey, slot), slot
}

// WithAdmin stores the authenticated admin on the provided context.
func WithAdmin(ctx context.Context, admin Admin) context.Context {
	if slot, ok := ctx.Value(adminSlotKey).(*AdminSlot); ok && slot != nil {
		slot.Admin = admin
		slot.Set = true
	}
	return context.WithValue(ctx, adminKey, admin)
}

// AdminFrom extracts the authenticated admin from the context if present.
func AdminFrom(ctx context.Context) (Admin, bool) {
	v := ctx.Value(adminKey)
	if v == nil {
		return Admin{}, false
	}
	admin, ok := v.(Admin)
	return admin, ok
}

// ObservedAdmin reports the admin recorded in the slot installed by WithAdminSlot.
func ObservedAdmin(ctx context.Context) (Admin, bool) {
	slot, ok := ctx.Value(adminSlotKey).(*AdminSlot)
	if !ok || slot == nil || !slot.Set {
		return Admin{}, false
	}
	return slot.Admin, true
}
