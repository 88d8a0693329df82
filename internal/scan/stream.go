package scan

import "context"

// Stream walks the tree and streams FileVisit entries over a channel.
// If filesOnly is true, directory entries are omitted. Cancelling ctx stops
// the walk early. errCh receives a single error (nil on success).
func Stream(ctx context.Context, root string, opts Options, filesOnly bool) (<-chan FileVisit, <-chan error) {
	out := make(chan FileVisit, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		err := ScanContext(ctx, root, opts, func(fv FileVisit) error {
			if filesOnly && fv.IsDir {
				return nil
			}
			select {
			case out <- fv:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		errCh <- err
		close(errCh)
	}()

	return out, errCh
}
