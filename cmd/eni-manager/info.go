package main

import (
	"context"
	"fmt"

	"github.com/johnlam90/aws-eni-manager/pkg/netif"
)

func (a *app) runID(ctx context.Context, args []string) error {
	fs := a.flagSet("id")
	common := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := a.runtime(common)
	if err != nil {
		return err
	}

	identity, err := rt.manager.Identity(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(identity)
}

func (a *app) runTest(ctx context.Context, args []string) error {
	fs := a.flagSet("test")
	common := registerCommon(fs)
	selector := registerSelector(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := a.runtime(common)
	if err != nil {
		return err
	}

	ref := netif.EmptyRef()
	ref.InterfaceID = *selector.eni
	ref.Name = *selector.name
	if *selector.device > 0 {
		ref.DeviceNumber = *selector.device
	}
	if ref.Empty() {
		return fmt.Errorf("test needs a device: give -eni, -name, or -device")
	}

	local := rt.manager.LocalInterface()
	dev, err := local.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if err := local.Test(ctx, ref); err != nil {
		return err
	}

	return a.printJSON(map[string]string{
		"device":      dev.Name,
		"interfaceID": dev.InterfaceID,
		"gateway":     dev.Gateway,
		"result":      "reachable",
	})
}
