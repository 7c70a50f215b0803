package anim

import "github.com/l1jgo/enginecore/internal/scene"

// Advance moves playback forward by dt and returns the time to sample at.
// A non-looping clip stops on its last frame.
func Advance(a *scene.Animation, c *Clip, dt float32) float32 {
	speed := a.Speed
	if speed == 0 {
		speed = 1
	}
	a.Time += dt * speed
	t, running := c.Wrap(a.Time)
	if c.Loop {
		a.Time = t
	}
	if !running {
		a.Time = t
		a.Playing = false
	}
	return t
}

// Apply writes the clip pose at time t onto the subtree rooted at h.
// Tracks whose target path does not resolve are skipped. It returns the
// number of nodes written.
func Apply(g *scene.Graph, h scene.Handle, c *Clip, t float32) int {
	written := 0
	for i := range c.Tracks {
		tr := &c.Tracks[i]
		target, ok := g.FindPath(h, tr.Target)
		if !ok {
			continue
		}
		n, _ := g.Get(target)
		if g.SetLocal(target, tr.Sample(t, n.Local)) == nil {
			written++
		}
	}
	return written
}
