// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

// meshInput is the vertex input of mesh pipelines: MeshVertexLayout at
// buffer 0 and the instance layout at buffer 1.
const meshInput = `
struct MeshInput {
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
    @location(3) model0: vec4<f32>,
    @location(4) model1: vec4<f32>,
    @location(5) model2: vec4<f32>,
    @location(6) model3: vec4<f32>,
    @location(7) color: vec4<f32>,
}
`

// fullscreen draws one triangle covering the target with DrawArray(0, 3, 1).
const fullscreen = `
struct FullscreenVarying {
    @builtin(position) clip: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_fullscreen(@builtin(vertex_index) index: u32) -> FullscreenVarying {
    let uv = vec2<f32>(f32((index << 1u) & 2u), f32(index & 2u));
    var out: FullscreenVarying;
    out.clip = vec4<f32>(uv.x * 2.0 - 1.0, 1.0 - uv.y * 2.0, 0.0, 1.0);
    out.uv = uv;
    return out;
}
`

// frameUniform matches appendFrame.
const frameUniform = `
struct Frame {
    view_proj: mat4x4<f32>,
    inv_view_proj: mat4x4<f32>,
    camera_position: vec3<f32>,
    light_count: u32,
    ambient: vec3<f32>,
    pad: f32,
}
`

// lighting declares slots 0 to 3 and the comparison sampler at 15, and
// the shade function of the lighting passes. Light matches appendLight.
const lighting = frameUniform + `
struct Light {
    position: vec3<f32>,
    kind: u32,
    color: vec3<f32>,
    intensity: f32,
    direction: vec3<f32>,
    range: f32,
    shadow_layer: i32,
    pad0: u32,
    pad1: u32,
    pad2: u32,
}

struct ShadowSlot {
    view_proj: mat4x4<f32>,
    pad: array<vec4<f32>, 12>,
}

@group(0) @binding(0) var<uniform> frame: Frame;
@group(0) @binding(1) var<storage, read> lights: array<Light>;
@group(0) @binding(2) var<storage, read> shadows: array<ShadowSlot>;
@group(0) @binding(3) var shadow_map: texture_depth_2d_array;
@group(0) @binding(15) var shadow_sampler: sampler_comparison;

fn shadow_factor(layer: i32, world: vec3<f32>) -> f32 {
    if (layer < 0) {
        return 1.0;
    }
    let clip = shadows[layer].view_proj * vec4<f32>(world, 1.0);
    let ndc = clip.xyz / clip.w;
    let uv = vec2<f32>(ndc.x * 0.5 + 0.5, 0.5 - ndc.y * 0.5);
    if (uv.x < 0.0 || uv.x > 1.0 || uv.y < 0.0 || uv.y > 1.0 || ndc.z > 1.0) {
        return 1.0;
    }
    return textureSampleCompareLevel(shadow_map, shadow_sampler, uv, layer, ndc.z - 0.002);
}

fn shade(world: vec3<f32>, normal: vec3<f32>, albedo: vec3<f32>) -> vec3<f32> {
    var result = frame.ambient * albedo;
    for (var i = 0u; i < frame.light_count; i = i + 1u) {
        let lt = lights[i];
        var to_light = -lt.direction;
        var attenuation = 1.0;
        if (lt.kind != 0u) {
            let delta = lt.position - world;
            let dist = length(delta);
            to_light = delta / max(dist, 0.0001);
            attenuation = clamp(1.0 - dist / max(lt.range, 0.0001), 0.0, 1.0);
        }
        let diffuse = max(dot(normal, normalize(to_light)), 0.0);
        let visible = shadow_factor(lt.shadow_layer, world);
        result = result + albedo * lt.color * lt.intensity * diffuse * attenuation * visible;
    }
    return result;
}
`

const shadowSource = meshInput + `
struct ShadowView {
    view_proj: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> shadow_view: ShadowView;

@vertex
fn vs_main(in: MeshInput) -> @builtin(position) vec4<f32> {
    let model = mat4x4<f32>(in.model0, in.model1, in.model2, in.model3);
    return shadow_view.view_proj * model * vec4<f32>(in.position, 1.0);
}
`

const constructionSource = meshInput + frameUniform + `
@group(0) @binding(0) var<uniform> frame: Frame;

struct GBufferVarying {
    @builtin(position) clip: vec4<f32>,
    @location(0) normal: vec3<f32>,
    @location(1) color: vec4<f32>,
}

@vertex
fn vs_main(in: MeshInput) -> GBufferVarying {
    let model = mat4x4<f32>(in.model0, in.model1, in.model2, in.model3);
    var out: GBufferVarying;
    out.clip = frame.view_proj * model * vec4<f32>(in.position, 1.0);
    out.normal = (model * vec4<f32>(in.normal, 0.0)).xyz;
    out.color = in.color;
    return out;
}

struct GBufferOutput {
    @location(0) albedo: vec4<f32>,
    @location(1) normal: vec4<f32>,
}

@fragment
fn fs_main(in: GBufferVarying) -> GBufferOutput {
    var out: GBufferOutput;
    out.albedo = in.color;
    out.normal = vec4<f32>(normalize(in.normal) * 0.5 + vec3<f32>(0.5), 1.0);
    return out;
}
`

const deferredSource = fullscreen + lighting + `
@group(0) @binding(4) var gbuffer_albedo: texture_2d<f32>;
@group(0) @binding(5) var gbuffer_normal: texture_2d<f32>;
@group(0) @binding(6) var gbuffer_depth: texture_depth_2d;

@fragment
fn fs_main(in: FullscreenVarying) -> @location(0) vec4<f32> {
    let coord = vec2<i32>(in.clip.xy);
    let depth = textureLoad(gbuffer_depth, coord, 0);
    if (depth >= 1.0) {
        return vec4<f32>(0.0, 0.0, 0.0, 0.0);
    }
    let albedo = textureLoad(gbuffer_albedo, coord, 0);
    let normal = normalize(textureLoad(gbuffer_normal, coord, 0).xyz * 2.0 - vec3<f32>(1.0));
    let size = vec2<f32>(textureDimensions(gbuffer_depth));
    let ndc = vec4<f32>(in.clip.x / size.x * 2.0 - 1.0, 1.0 - in.clip.y / size.y * 2.0, depth, 1.0);
    let world = frame.inv_view_proj * ndc;
    let color = shade(world.xyz / world.w, normal, albedo.rgb);
    return vec4<f32>(color * albedo.a, albedo.a);
}
`

const forwardSource = meshInput + lighting + `
struct ForwardVarying {
    @builtin(position) clip: vec4<f32>,
    @location(0) world: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) color: vec4<f32>,
}

@vertex
fn vs_main(in: MeshInput) -> ForwardVarying {
    let model = mat4x4<f32>(in.model0, in.model1, in.model2, in.model3);
    let world = model * vec4<f32>(in.position, 1.0);
    var out: ForwardVarying;
    out.clip = frame.view_proj * world;
    out.world = world.xyz;
    out.normal = (model * vec4<f32>(in.normal, 0.0)).xyz;
    out.color = in.color;
    return out;
}

@fragment
fn fs_main(in: ForwardVarying) -> @location(0) vec4<f32> {
    let color = shade(in.world, normalize(in.normal), in.color.rgb);
    return vec4<f32>(color * in.color.a, in.color.a);
}
`

const canvasSource = `
struct Viewport {
    size: vec4<f32>,
}

@group(0) @binding(0) var<uniform> viewport: Viewport;
@group(0) @binding(1) var images: texture_2d_array<f32>;
@group(0) @binding(2) var image_sampler: sampler;

struct QuadVarying {
    @builtin(position) clip: vec4<f32>,
    @location(0) uv: vec2<f32>,
    @location(1) layer: f32,
    @location(2) color: vec4<f32>,
}

@vertex
fn vs_main(
    @builtin(vertex_index) index: u32,
    @location(0) rect: vec4<f32>,
    @location(1) image: vec4<f32>,
    @location(2) color: vec4<f32>,
) -> QuadVarying {
    var corners = array<vec2<f32>, 6>(
        vec2<f32>(0.0, 0.0),
        vec2<f32>(1.0, 0.0),
        vec2<f32>(0.0, 1.0),
        vec2<f32>(0.0, 1.0),
        vec2<f32>(1.0, 0.0),
        vec2<f32>(1.0, 1.0),
    );
    let corner = corners[index];
    let pixel = rect.xy + corner * rect.zw;
    var out: QuadVarying;
    out.clip = vec4<f32>(pixel.x / viewport.size.x * 2.0 - 1.0, 1.0 - pixel.y / viewport.size.y * 2.0, 0.0, 1.0);
    out.uv = corner * image.xy;
    out.layer = image.z;
    out.color = vec4<f32>(color.rgb * color.a, color.a);
    return out;
}

@fragment
fn fs_main(in: QuadVarying) -> @location(0) vec4<f32> {
    let texel = textureSample(images, image_sampler, in.uv, i32(in.layer + 0.5));
    return texel * in.color;
}
`

const compositingSource = fullscreen + `
@group(0) @binding(0) var layer_color: texture_2d<f32>;
@group(0) @binding(1) var layer_sampler: sampler;

@fragment
fn fs_main(in: FullscreenVarying) -> @location(0) vec4<f32> {
    return textureSample(layer_color, layer_sampler, in.uv);
}
`
