package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/johnlam90/aws-eni-manager/pkg/lifecycle"
)

func (a *app) runCreate(ctx context.Context, args []string) error {
	fs := a.flagSet("create")
	common := registerCommon(fs)
	subnetID := fs.String("subnet", "", "Subnet id (default: the primary interface's subnet)")
	securityGroups := fs.String("security-groups", "", "Comma-separated security group ids (default: the subnet's default group)")
	description := fs.String("description", "", "Interface description")
	tags := tagsValue{}
	fs.Var(tags, "tag", "Tag in key=value form; repeatable")
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

	result, err := rt.manager.Create(ctx, lifecycle.CreateOptions{
		SubnetID:         *subnetID,
		SecurityGroupIDs: splitCSV(*securityGroups),
		Description:      *description,
		Tags:             tags,
	})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) runAttach(ctx context.Context, args []string) error {
	fs := a.flagSet("attach")
	common := registerCommon(fs)
	eni := fs.String("eni", "", "Interface id to attach (required)")
	device := fs.Int("device", 0, "Attachment slot (default: the first free slot)")
	name := fs.String("name", "", "Expected local device name for the slot")
	noConfigure := fs.Bool("no-configure", false, "Skip installing source-policy routing")
	noEnable := fs.Bool("no-enable", false, "Skip bringing the link up")
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

	result, err := rt.manager.Attach(ctx, lifecycle.AttachOptions{
		InterfaceID:  *eni,
		DeviceNumber: *device,
		Name:         *name,
		NoConfigure:  *noConfigure,
		NoEnable:     *noEnable,
	})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) runDetach(ctx context.Context, args []string) error {
	fs := a.flagSet("detach")
	common := registerCommon(fs)
	selector := registerSelector(fs)
	deleteFlag := fs.Bool("delete", false, "Delete the interface after detaching, even if this tool did not create it")
	keepFlag := fs.Bool("keep", false, "Keep the interface after detaching, even if this tool created it")
	block := fs.Bool("block", false, "Wait for the detachment to converge even when nothing is deleted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deleteOverride, err := deleteOverride(*deleteFlag, *keepFlag)
	if err != nil {
		return err
	}

	rt, err := a.runtime(common)
	if err != nil {
		return err
	}
	if err := rt.preflight(ctx); err != nil {
		return err
	}

	result, err := rt.manager.Detach(ctx, lifecycle.DetachOptions{
		InterfaceID:  *selector.eni,
		Name:         *selector.name,
		DeviceNumber: *selector.device,
		Delete:       deleteOverride,
		Block:        *block,
	})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) runClean(ctx context.Context, args []string) error {
	fs := a.flagSet("clean")
	common := registerCommon(fs)
	filter := fs.String("filter", "", "Restrict the sweep to one interface id, subnet id, or availability zone")
	unsafe := fs.Bool("unsafe", false, "Delete every available interface regardless of ownership and age")
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

	result, err := rt.manager.Clean(ctx, lifecycle.CleanOptions{
		Filter: *filter,
		Unsafe: *unsafe,
	})
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

// selectorFlags identify a device by interface id, local name, or
// attachment slot.
type selectorFlags struct {
	eni    *string
	name   *string
	device *int
}

func registerSelector(fs *flag.FlagSet) *selectorFlags {
	return &selectorFlags{
		eni:    fs.String("eni", "", "Interface id"),
		name:   fs.String("name", "", "Local device name"),
		device: fs.Int("device", 0, "Attachment slot"),
	}
}

// deleteOverride maps the -delete / -keep flag pair onto the detach
// deletion override. Unset means "decide by ownership".
func deleteOverride(deleteFlag, keepFlag bool) (*bool, error) {
	if deleteFlag && keepFlag {
		return nil, fmt.Errorf("cannot combine -delete and -keep")
	}
	if deleteFlag {
		v := true
		return &v, nil
	}
	if keepFlag {
		v := false
		return &v, nil
	}
	return nil, nil
}
