/*
Package lib provides a clean API for using the ENI manager as a
library in other Go projects.

This package abstracts away the orchestration details of the ENI
manager and provides a simple interface for managing AWS Elastic
Network Interfaces (ENIs), their secondary private addresses, and
elastic addresses from code running on the instance.

Basic usage:

	// Create a logger
	zapLog, _ := zap.NewDevelopment()
	logger := zapr.NewLogger(zapLog)

	// Create a context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Create an ENI manager. Region and instance identity come from
	// the metadata service.
	eniManager := lib.NewENIManager(logger)

	// Create an ENI in the primary interface's subnet
	created, err := eniManager.CreateENI(ctx, lib.CreateOptions{
		Description: "Example ENI",
	})
	if err != nil {
		log.Fatalf("Failed to create ENI: %v", err)
	}

	// Attach it at the first free device slot and configure routing
	attached, err := eniManager.AttachENI(ctx, lib.AttachOptions{
		InterfaceID: created.InterfaceID,
	})
	if err != nil {
		log.Fatalf("Failed to attach ENI: %v", err)
	}

	// Assign a secondary address to the new device
	_, err = eniManager.AssignAddress(ctx, lib.AssignOptions{
		InterfaceID: attached.InterfaceID,
	})
	if err != nil {
		log.Fatalf("Failed to assign address: %v", err)
	}

	// Detach; the interface was created by this tool, so it is also
	// deleted
	_, err = eniManager.DetachENI(ctx, lib.DetachOptions{
		Name: attached.Name,
	})
	if err != nil {
		log.Fatalf("Failed to detach ENI: %v", err)
	}

For more examples, see the examples/library-usage directory.
*/
package lib
