// Package awsenimanager manages the lifecycle of AWS Elastic Network
// Interfaces (ENIs) on the EC2 instance it runs on: creating,
// attaching, configuring, detaching and cleaning up interfaces, and
// managing their secondary private and elastic IP addresses.
// Version: v0.9.0
//
// This package can be used in two ways:
//
// 1. As a command line tool (see cmd/eni-manager)
// 2. As a library for driving the lifecycle programmatically (see pkg/lib)
//
// For library usage, import the lib package:
//
//	import "github.com/johnlam90/aws-eni-manager/pkg/lib"
//
// Then use the ENIManager to create, attach, detach and delete ENIs:
//
//	// Create a logger
//	zapLog, _ := zap.NewDevelopment()
//	logger := zapr.NewLogger(zapLog)
//
//	// Create an ENI manager bound to the current instance
//	eniManager := lib.NewENIManager(logger)
//
//	// Create an ENI in the instance's subnet
//	created, err := eniManager.CreateENI(ctx, lib.CreateOptions{
//	    Description: "Example ENI",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create ENI: %v", err)
//	}
//
//	// Attach it at the first free device slot
//	attached, err := eniManager.AttachENI(ctx, lib.AttachOptions{
//	    InterfaceID: created.InterfaceID,
//	})
//
// For more examples, see the examples/library-usage directory.
package awsenimanager
