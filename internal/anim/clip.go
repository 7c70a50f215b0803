// Package anim holds keyframe animation clips and their sampling.
package anim

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/enginecore/internal/scene"
	"gopkg.in/yaml.v3"
)

var ErrBadClip = errors.New("anim: invalid clip")

type Vec3Key struct {
	Time  float32
	Value mgl32.Vec3
}

type QuatKey struct {
	Time  float32
	Value mgl32.Quat
}

// Track animates one node, addressed by a slash-separated name path relative
// to the animated node. "" is the node itself. Empty channels leave that
// component of the transform alone.
type Track struct {
	Target      string
	Translation []Vec3Key
	Rotation    []QuatKey
	Scale       []Vec3Key
}

// Clip is an immutable set of tracks. A hot reload replaces the whole clip.
type Clip struct {
	Name     string
	Duration float32
	Loop     bool
	Tracks   []Track
}

// Wrap maps a playback time onto the clip. It reports false when a
// non-looping clip has run past its end.
func (c *Clip) Wrap(t float32) (float32, bool) {
	if c.Duration <= 0 {
		return 0, c.Loop
	}
	if c.Loop {
		t = float32(math.Mod(float64(t), float64(c.Duration)))
		if t < 0 {
			t += c.Duration
		}
		return t, true
	}
	if t < 0 {
		return 0, true
	}
	if t >= c.Duration {
		return c.Duration, false
	}
	return t, true
}

// Sample evaluates track at time t on top of base. Times outside the key
// range clamp to the first or last key.
func (tr *Track) Sample(t float32, base scene.Transform) scene.Transform {
	if len(tr.Translation) > 0 {
		base.Position = sampleVec3(tr.Translation, t)
	}
	if len(tr.Rotation) > 0 {
		base.Rotation = sampleQuat(tr.Rotation, t)
	}
	if len(tr.Scale) > 0 {
		base.Scale = sampleVec3(tr.Scale, t)
	}
	return base
}

// span returns the key pair around t and the blend factor between them.
func span(n int, at func(int) float32, t float32) (int, int, float32) {
	if t <= at(0) {
		return 0, 0, 0
	}
	if t >= at(n-1) {
		return n - 1, n - 1, 0
	}
	j := sort.Search(n, func(i int) bool { return at(i) > t })
	i := j - 1
	d := at(j) - at(i)
	if d <= 0 {
		return j, j, 0
	}
	return i, j, (t - at(i)) / d
}

func sampleVec3(keys []Vec3Key, t float32) mgl32.Vec3 {
	i, j, f := span(len(keys), func(k int) float32 { return keys[k].Time }, t)
	a, b := keys[i].Value, keys[j].Value
	return a.Add(b.Sub(a).Mul(f))
}

func sampleQuat(keys []QuatKey, t float32) mgl32.Quat {
	i, j, f := span(len(keys), func(k int) float32 { return keys[k].Time }, t)
	if i == j {
		return keys[i].Value
	}
	return mgl32.QuatSlerp(keys[i].Value, keys[j].Value, f)
}

// clipFile is the on-disk YAML layout.
type clipFile struct {
	Name     string      `yaml:"name"`
	Duration float32     `yaml:"duration"`
	Loop     bool        `yaml:"loop"`
	Tracks   []trackFile `yaml:"tracks"`
}

type trackFile struct {
	Target      string    `yaml:"target"`
	Translation []keyFile `yaml:"translation"`
	Rotation    []keyFile `yaml:"rotation"` // w, x, y, z or euler degrees x, y, z
	Scale       []keyFile `yaml:"scale"`
}

type keyFile struct {
	T float32   `yaml:"t"`
	V []float32 `yaml:"v"`
}

// Parse decodes a YAML clip. Keys must be in ascending time order. A zero
// duration is taken from the last key.
func Parse(raw []byte) (*Clip, error) {
	var f clipFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse clip: %w", err)
	}
	c := &Clip{Name: f.Name, Duration: f.Duration, Loop: f.Loop, Tracks: make([]Track, 0, len(f.Tracks))}
	var last float32
	for ti, tf := range f.Tracks {
		tr := Track{Target: tf.Target}
		var err error
		if tr.Translation, err = vec3Keys(tf.Translation, &last); err != nil {
			return nil, fmt.Errorf("%w: track %d translation: %v", ErrBadClip, ti, err)
		}
		if tr.Rotation, err = quatKeys(tf.Rotation, &last); err != nil {
			return nil, fmt.Errorf("%w: track %d rotation: %v", ErrBadClip, ti, err)
		}
		if tr.Scale, err = vec3Keys(tf.Scale, &last); err != nil {
			return nil, fmt.Errorf("%w: track %d scale: %v", ErrBadClip, ti, err)
		}
		c.Tracks = append(c.Tracks, tr)
	}
	if c.Duration < 0 {
		return nil, fmt.Errorf("%w: negative duration", ErrBadClip)
	}
	if c.Duration == 0 {
		c.Duration = last
	}
	return c, nil
}

func checkTimes(keys []keyFile, last *float32) error {
	for i, k := range keys {
		if k.T < 0 {
			return fmt.Errorf("key %d: negative time", i)
		}
		if i > 0 && k.T < keys[i-1].T {
			return fmt.Errorf("key %d: time goes backwards", i)
		}
		if k.T > *last {
			*last = k.T
		}
	}
	return nil
}

func vec3Keys(keys []keyFile, last *float32) ([]Vec3Key, error) {
	if err := checkTimes(keys, last); err != nil {
		return nil, err
	}
	out := make([]Vec3Key, 0, len(keys))
	for i, k := range keys {
		if len(k.V) != 3 {
			return nil, fmt.Errorf("key %d: want 3 values, got %d", i, len(k.V))
		}
		out = append(out, Vec3Key{Time: k.T, Value: mgl32.Vec3{k.V[0], k.V[1], k.V[2]}})
	}
	return out, nil
}

func quatKeys(keys []keyFile, last *float32) ([]QuatKey, error) {
	if err := checkTimes(keys, last); err != nil {
		return nil, err
	}
	out := make([]QuatKey, 0, len(keys))
	for i, k := range keys {
		var q mgl32.Quat
		switch len(k.V) {
		case 4:
			q = mgl32.Quat{W: k.V[0], V: mgl32.Vec3{k.V[1], k.V[2], k.V[3]}}
		case 3:
			q = mgl32.AnglesToQuat(mgl32.DegToRad(k.V[0]), mgl32.DegToRad(k.V[1]), mgl32.DegToRad(k.V[2]), mgl32.XYZ)
		default:
			return nil, fmt.Errorf("key %d: want 3 or 4 values, got %d", i, len(k.V))
		}
		if q.Len() == 0 {
			return nil, fmt.Errorf("key %d: zero quaternion", i)
		}
		out = append(out, QuatKey{Time: k.T, Value: q.Normalize()})
	}
	return out, nil
}
