package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rakunlabs/alan"
)

// lockHeartbeatReaper is the distributed lock name every control-plane
// instance contends for before running one reap pass.
const lockHeartbeatReaper = "heartbeat-reaper"

// cluster wraps an alan instance so multiple control-plane replicas can
// elect a single heartbeat-reaper leader over UDP peer discovery.
type cluster struct {
	alan *alan.Alan
}

// newCluster starts alan peer discovery from cfg. Returns nil, nil if cfg
// is nil (clustering disabled, the common single-instance case).
func newCluster(ctx context.Context, cfg *alan.Config) (*cluster, error) {
	if cfg == nil {
		return nil, nil
	}

	a, err := alan.New(*cfg)
	if err != nil {
		return nil, fmt.Errorf("create alan instance: %w", err)
	}

	c := &cluster{alan: a}
	c.alan.OnPeerJoin(func(addr *net.UDPAddr) {
		slog.Info("control-plane peer joined", "addr", addr.String())
	})
	c.alan.OnPeerLeave(func(addr *net.UDPAddr) {
		slog.Info("control-plane peer left", "addr", addr.String())
	})

	go func() {
		if err := c.alan.Start(ctx, func(context.Context, alan.Message) {}); err != nil {
			slog.Error("control-plane cluster stopped", "error", err)
		}
	}()

	return c, nil
}

// tryLockReaper attempts to become the heartbeat-reaper leader for one
// reap pass, giving up after timeout rather than blocking the whole tick
// on an unreachable peer. ok is false when another instance holds the
// lock or the attempt times out.
func (c *cluster) tryLockReaper(ctx context.Context, timeout time.Duration) (ok bool) {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.alan.Lock(lockCtx, lockHeartbeatReaper); err != nil {
		return false
	}
	return true
}

func (c *cluster) unlockReaper() {
	c.alan.Unlock(lockHeartbeatReaper) //nolint:errcheck
}

func (c *cluster) stop() {
	c.alan.Stop() //nolint:errcheck
}
