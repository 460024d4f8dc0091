// Package abfs provides a POSIX-like client for Azure Blob Storage, built
// around three value types:
//
//   - Session holds one set of credentials (client-credentials, auth-code/
//     device-code, or managed-identity) and refreshes its bearer token on
//     demand, coalescing concurrent refreshers onto a single request.
//   - ContainerHandle addresses one (storage account, container, prefix)
//     triple and exposes create/remove/list/stat/exists/delete/copy plus
//     parallel block-blob upload and Range-GET download.
//   - BlobHandle is a lightweight (container, name) pair with convenience
//     methods that delegate back to its container.
//
// A typical session looks like:
//
//	sess := abfs.NewSession(abfs.SessionConfig{
//		Kind:         abfs.ClientCredentials,
//		Tenant:       tenant,
//		ClientID:     clientID,
//		ClientSecret: clientSecret,
//		Resource:     "https://storage.azure.com/",
//	})
//	c, err := abfs.NewContainerHandle("myaccount", "mycontainer", sess, abfs.Config{})
//	if err != nil {
//		return err
//	}
//	if err := c.WriteString(ctx, "greeting.txt", "hello"); err != nil {
//		return err
//	}
//	got, err := c.ReadString(ctx, "greeting.txt")
package abfs
