package command

import (
	"context"
	"fmt"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/feature/access"
)

// selfGuard replies and returns false when the caller is the target or cannot
// be resolved.
func (d *Dispatcher) selfGuard(ctx context.Context, req *request, target domain.Member, selfText string) (bool, error) {
	check, err := d.guard.CheckSelf(ctx, req.caller, target)
	if err != nil {
		return false, fmt.Errorf("resolve caller: %w", err)
	}

	switch check {
	case access.SelfTarget:
		req.rejected = true
		return false, d.reply(ctx, req, selfText)
	case access.SelfUnresolved:
		req.rejected = true
		return false, d.reply(ctx, req, UnresolvedCallerText)
	default:
		return true, nil
	}
}

func (d *Dispatcher) setRole(ctx context.Context, target domain.Member, role domain.Role) error {
	if err := d.members.Update(ctx, target.FiscalCode, domain.SetRole(role)); err != nil {
		return fmt.Errorf("set role of %s: %w", target.MemberCode, err)
	}
	return nil
}

func (d *Dispatcher) handleAddAdmin(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.AdminRoles) {
		return nil
	}
	target, ok, err := d.resolveTarget(ctx, req)
	if !ok || err != nil {
		return err
	}

	if target.Role == domain.RoleSuperAdmin {
		if !d.guard.IsSuperAdmin(ctx, req.caller, false) {
			req.rejected = true
			return d.reply(ctx, req, target.FullName()+" è già superamministratore del bot!")
		}
		if ok, err := d.selfGuard(ctx, req, target, SelfDemotionText); !ok || err != nil {
			return err
		}
	}

	if err := d.setRole(ctx, target, domain.RoleAdmin); err != nil {
		return err
	}
	return d.reply(ctx, req, target.FullName()+" è ora un amministratore del bot!")
}

func (d *Dispatcher) handleAddLeader(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.AdminRoles) {
		return nil
	}
	target, ok, err := d.resolveTarget(ctx, req)
	if !ok || err != nil {
		return err
	}

	if target.Role.Elevated() {
		if target.Role == domain.RoleSuperAdmin && !d.guard.IsSuperAdmin(ctx, req.caller, false) {
			req.rejected = true
			return d.reply(ctx, req, cannotDemoteText(target))
		}
		if ok, err := d.selfGuard(ctx, req, target, SelfDemotionText); !ok || err != nil {
			return err
		}
	}

	if err := d.setRole(ctx, target, domain.RoleLeader); err != nil {
		return err
	}
	return d.reply(ctx, req, fmt.Sprintf("%s è stat%s aggiunt%s in Co.Ca.!",
		target.FullName(), target.Gendered("o", "a"), target.Gendered("o", "a")))
}

// handleRemoveAdmin demotes to member. An admin target additionally needs a
// super admin caller; a super admin target is refused.
func (d *Dispatcher) handleRemoveAdmin(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.AdminRoles) {
		return nil
	}
	target, ok, err := d.resolveTarget(ctx, req)
	if !ok || err != nil {
		return err
	}

	switch target.Role {
	case domain.RoleSuperAdmin:
		req.rejected = true
		return d.reply(ctx, req, target.FullName()+" è superamministratore, non puoi depotenziarl"+target.Gendered("o", "a")+"!")
	case domain.RoleAdmin:
		if ok, err := d.selfGuard(ctx, req, target, SelfDemotionText); !ok || err != nil {
			return err
		}
		if !d.guard.IsSuperAdmin(ctx, req.caller, false) {
			req.rejected = true
			return d.reply(ctx, req, cannotDemoteText(target))
		}
	}

	if err := d.setRole(ctx, target, domain.RoleMember); err != nil {
		return err
	}
	return d.reply(ctx, req, fmt.Sprintf("%s è stat%s rimoss%s dagli amministratori e dalla Co.Ca.!",
		target.FullName(), target.Gendered("o", "a"), target.Gendered("o", "a")))
}

func (d *Dispatcher) handleRemoveLeader(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.AdminRoles) {
		return nil
	}
	target, ok, err := d.resolveTarget(ctx, req)
	if !ok || err != nil {
		return err
	}

	if target.Role.Elevated() {
		req.rejected = true
		return d.reply(ctx, req, cannotDemoteText(target))
	}

	if err := d.setRole(ctx, target, domain.RoleMember); err != nil {
		return err
	}
	return d.reply(ctx, req, fmt.Sprintf("%s è stat%s rimoss%s dalla Co.Ca.!",
		target.FullName(), target.Gendered("o", "a"), target.Gendered("o", "a")))
}

func (d *Dispatcher) handleActivate(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.AdminRoles) {
		return nil
	}
	target, ok, err := d.resolveTarget(ctx, req)
	if !ok || err != nil {
		return err
	}

	if err := d.members.Update(ctx, target.FiscalCode, domain.SetActive(true)); err != nil {
		return fmt.Errorf("activate %s: %w", target.MemberCode, err)
	}
	return d.reply(ctx, req, activationText(target, true))
}

func (d *Dispatcher) handleDeactivate(ctx context.Context, req *request) error {
	if !d.gate(ctx, req, domain.AdminRoles) {
		return nil
	}
	target, ok, err := d.resolveTarget(ctx, req)
	if !ok || err != nil {
		return err
	}

	if target.Role == domain.RoleSuperAdmin && !d.guard.IsSuperAdmin(ctx, req.caller, false) {
		req.rejected = true
		return d.reply(ctx, req, target.FullName()+" è superamministratore, non puoi disattivarl"+target.Gendered("o", "a")+"!")
	}
	if ok, err := d.selfGuard(ctx, req, target, SelfDeactivationText); !ok || err != nil {
		return err
	}

	if err := d.members.Update(ctx, target.FiscalCode, domain.SetActive(false)); err != nil {
		return fmt.Errorf("deactivate %s: %w", target.MemberCode, err)
	}
	return d.reply(ctx, req, activationText(target, false))
}

func cannotDemoteText(target domain.Member) string {
	return fmt.Sprintf("%s non può essere depotenziat%s da te perché è %s!",
		target.FullName(), target.Gendered("o", "a"), target.Role.DisplayName())
}

func activationText(target domain.Member, active bool) string {
	verb := "disattivat"
	if active {
		verb = "attivat"
	}
	g := target.Gendered("o", "a")
	return fmt.Sprintf("%s è stat%s %s%s", target.FullName(), g, verb, g)
}
