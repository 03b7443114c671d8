package gltfimport

import (
	"fmt"

	"github.com/qmuntal/gltf"

	"github.com/roach88/scenesync/internal/protocol"
)

// materialState maps a glTF material onto the authored material state.
// Absent factors keep the glTF defaults.
func materialState(m *gltf.Material) protocol.MaterialState {
	st := protocol.NewMaterialState()
	st.Name = m.Name
	st.DoubleSided = m.DoubleSided
	st.Emissive = protocol.Vec3{
		float64(m.EmissiveFactor[0]),
		float64(m.EmissiveFactor[1]),
		float64(m.EmissiveFactor[2]),
	}

	switch m.AlphaMode {
	case gltf.AlphaMask:
		st.AlphaMode = protocol.AlphaMask
	case gltf.AlphaBlend:
		st.AlphaMode = protocol.AlphaBlend
	default:
		st.AlphaMode = protocol.AlphaOpaque
	}
	if m.AlphaCutoff != nil {
		st.AlphaCutoff = float64(*m.AlphaCutoff)
	}

	if pbr := m.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			c := pbr.BaseColorFactorOrDefault()
			st.Color = protocol.Vec3{float64(c[0]), float64(c[1]), float64(c[2])}
			st.Alpha = float64(c[3])
		}
		if pbr.MetallicFactor != nil {
			st.Metalness = float64(*pbr.MetallicFactor)
		}
		if pbr.RoughnessFactor != nil {
			st.Roughness = float64(*pbr.RoughnessFactor)
		}
		if t := pbr.BaseColorTexture; t != nil {
			st.ColorTexture = textureID(t.Index)
		}
		if t := pbr.MetallicRoughnessTexture; t != nil {
			st.MetallicRoughnessTexture = textureID(t.Index)
		}
	}
	if t := m.NormalTexture; t != nil {
		if t.Index != nil {
			st.NormalTexture = textureID(*t.Index)
		}
		st.NormalScale = float64(t.ScaleOrDefault())
	}
	if t := m.OcclusionTexture; t != nil {
		if t.Index != nil {
			st.OcclusionTexture = textureID(*t.Index)
		}
		st.OcclusionStrength = float64(t.StrengthOrDefault())
	}
	if t := m.EmissiveTexture; t != nil {
		st.EmissiveTexture = textureID(t.Index)
	}
	return st
}

func textureID(i uint32) string {
	return fmt.Sprintf("texture/%d", i)
}
