package main

import (
	"context"

	"github.com/johnlam90/aws-eni-manager/pkg/lifecycle"
)

func (a *app) runAssign(ctx context.Context, args []string) error {
	fs := a.flagSet("assign")
	common := registerCommon(fs)
	selector := registerSelector(fs)
	address := fs.String("address", "", "Secondary address to assign (default: picked by the provider)")
	noConfigure := fs.Bool("no-configure", false, "Skip binding the address to the local link")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := a.runtime(common)
	if err != nil {
		return err
	}
	if err := rt.preflight(ctx); err != nil {
		return err
	}

	result, err := rt.manager.Assign(ctx, lifecycle.AssignOptions{
		InterfaceID:  *selector.eni,
		Name:         *selector.name,
		DeviceNumber: *selector.device,
		Address:      *address,
		NoConfigure:  *noConfigure,
	})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) runUnassign(ctx context.Context, args []string) error {
	fs := a.flagSet("unassign")
	common := registerCommon(fs)
	selector := registerSelector(fs)
	address := fs.String("address", "", "Secondary address to remove (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := a.runtime(common)
	if err != nil {
		return err
	}
	if err := rt.preflight(ctx); err != nil {
		return err
	}

	result, err := rt.manager.Unassign(ctx, lifecycle.UnassignOptions{
		InterfaceID:  *selector.eni,
		Name:         *selector.name,
		DeviceNumber: *selector.device,
		Address:      *address,
	})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) runAssociate(ctx context.Context, args []string) error {
	fs := a.flagSet("associate")
	common := registerCommon(fs)
	selector := registerSelector(fs)
	privateIP := fs.String("private-ip", "", "Private address to bind to (default: the device's primary address)")
	address := fs.String("address", "", "Elastic address to use: allocation id, association id, or IP (default: allocate a fresh one)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := a.runtime(common)
	if err != nil {
		return err
	}
	if err := rt.preflight(ctx); err != nil {
		return err
	}

	result, err := rt.manager.Associate(ctx, lifecycle.AssociateOptions{
		InterfaceID:  *selector.eni,
		Name:         *selector.name,
		DeviceNumber: *selector.device,
		PrivateIP:    *privateIP,
		Address:      *address,
	})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) runDissociate(ctx context.Context, args []string) error {
	fs := a.flagSet("dissociate")
	common := registerCommon(fs)
	selector := registerSelector(fs)
	address := fs.String("address", "", "Elastic address to unbind: allocation id, association id, or IP (required)")
	release := fs.Bool("release", false, "Release the allocation after dissociating")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := a.runtime(common)
	if err != nil {
		return err
	}
	if err := rt.preflight(ctx); err != nil {
		return err
	}

	result, err := rt.manager.Dissociate(ctx, lifecycle.DissociateOptions{
		Address:      *address,
		InterfaceID:  *selector.eni,
		Name:         *selector.name,
		DeviceNumber: *selector.device,
		Release:      *release,
	})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) runAllocate(ctx context.Context, args []string) error {
	fs := a.flagSet("allocate")
	common := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := a.runtime(common)
	if err != nil {
		return err
	}
	if err := rt.preflight(ctx); err != nil {
		return err
	}

	result, err := rt.manager.Allocate(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) runRelease(ctx context.Context, args []string) error {
	fs := a.flagSet("release")
	common := registerCommon(fs)
	address := fs.String("address", "", "Elastic address to release: allocation id or public IP (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := a.runtime(common)
	if err != nil {
		return err
	}
	if err := rt.preflight(ctx); err != nil {
		return err
	}

	result, err := rt.manager.Release(ctx, lifecycle.ReleaseOptions{Address: *address})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}
