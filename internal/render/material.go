package render

import (
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/reactive"
	"github.com/roach88/scenesync/internal/scene"
)

// Textures holds the image uri bound to each texture slot; "" is empty.
type Textures struct {
	Color             string `json:"color,omitempty"`
	Normal            string `json:"normal,omitempty"`
	Occlusion         string `json:"occlusion,omitempty"`
	Emissive          string `json:"emissive,omitempty"`
	MetallicRoughness string `json:"metallic_roughness,omitempty"`
}

// VisualMaterial is the renderer-side material. Each attribute is driven by
// its own subscription to the replica material, so an update to one field
// touches exactly one attribute.
type VisualMaterial struct {
	ID          string        `json:"id"`
	Color       protocol.Vec3 `json:"color"`
	Opacity     float64       `json:"opacity"`
	Transparent bool          `json:"transparent"`
	DepthWrite  bool          `json:"depth_write"`
	AlphaTest   float64       `json:"alpha_test"`
	DoubleSided bool          `json:"double_sided"`
	Roughness   float64       `json:"roughness"`
	Metalness   float64       `json:"metalness"`
	Emissive    protocol.Vec3 `json:"emissive"`
	Maps        Textures      `json:"maps"`
	// NormalScale is applied to both tangent axes of the normal map.
	NormalScale    [2]float64 `json:"normal_scale"`
	AOMapIntensity float64    `json:"ao_map_intensity"`

	// Updates counts subscription-driven writes per attribute.
	Updates map[string]int `json:"-"`

	mode   protocol.AlphaMode
	cutoff float64
	unsubs []func()
}

// bindMaterial creates a visual material that follows src field by field.
func bindMaterial(src *scene.Material) *VisualMaterial {
	v := &VisualMaterial{ID: src.ID, Updates: make(map[string]int)}

	v.Color = src.Color.Get()
	v.Opacity = src.Alpha.Get()
	v.DoubleSided = src.DoubleSided.Get()
	v.Roughness = src.Roughness.Get()
	v.Metalness = src.Metalness.Get()
	v.Emissive = src.Emissive.Get()
	v.setNormalScale(src.NormalScale.Get())
	v.AOMapIntensity = src.OcclusionStrength.Get()
	v.cutoff = src.AlphaCutoff.Get()
	v.setAlphaMode(src.AlphaMode.Get())
	v.Maps = Textures{
		Color:             src.ColorTexture.Get(),
		Normal:            src.NormalTexture.Get(),
		Occlusion:         src.OcclusionTexture.Get(),
		Emissive:          src.EmissiveTexture.Get(),
		MetallicRoughness: src.MetallicRoughnessTexture.Get(),
	}

	follow(v, src.Color, "color", func(c protocol.Vec3) { v.Color = c })
	follow(v, src.Alpha, "opacity", func(a float64) { v.Opacity = a })
	follow(v, src.AlphaMode, "alpha_mode", v.setAlphaMode)
	follow(v, src.AlphaCutoff, "alpha_test", func(c float64) {
		v.cutoff = c
		if v.mode == protocol.AlphaMask {
			v.AlphaTest = c
		}
	})
	follow(v, src.DoubleSided, "side", func(d bool) { v.DoubleSided = d })
	follow(v, src.Roughness, "roughness", func(r float64) { v.Roughness = r })
	follow(v, src.Metalness, "metalness", func(m float64) { v.Metalness = m })
	follow(v, src.Emissive, "emissive", func(e protocol.Vec3) { v.Emissive = e })
	follow(v, src.NormalScale, "normal_scale", v.setNormalScale)
	follow(v, src.OcclusionStrength, "ao_map_intensity", func(s float64) { v.AOMapIntensity = s })
	follow(v, src.ColorTexture, "map", func(u string) { v.Maps.Color = u })
	follow(v, src.NormalTexture, "normal_map", func(u string) { v.Maps.Normal = u })
	follow(v, src.OcclusionTexture, "ao_map", func(u string) { v.Maps.Occlusion = u })
	follow(v, src.EmissiveTexture, "emissive_map", func(u string) { v.Maps.Emissive = u })
	follow(v, src.MetallicRoughnessTexture, "metallic_roughness_map", func(u string) { v.Maps.MetallicRoughness = u })
	return v
}

func follow[T any](v *VisualMaterial, p *reactive.Property[T], attr string, apply func(T)) {
	v.unsubs = append(v.unsubs, p.Subscribe(func(val T) {
		apply(val)
		v.Updates[attr]++
	}))
}

// setAlphaMode maps glTF alpha modes onto blending state: BLEND is
// transparent without depth writes, MASK alpha-tests at the cutoff.
func (v *VisualMaterial) setAlphaMode(mode protocol.AlphaMode) {
	v.mode = mode
	switch mode {
	case protocol.AlphaBlend:
		v.Transparent = true
		v.DepthWrite = false
		v.AlphaTest = 0
	case protocol.AlphaMask:
		v.Transparent = false
		v.DepthWrite = true
		v.AlphaTest = v.cutoff
	default:
		v.Transparent = false
		v.DepthWrite = true
		v.AlphaTest = 0
	}
}

func (v *VisualMaterial) setNormalScale(s float64) {
	v.NormalScale = [2]float64{s, s}
}

// release drops every subscription.
func (v *VisualMaterial) release() {
	for _, u := range v.unsubs {
		u()
	}
	v.unsubs = nil
}
