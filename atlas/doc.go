// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package atlas packs many small resources into a few large GPU objects
// managed by a render graph.
//
// TextureAtlas stores images in layers of square array textures, one per
// resolution bucket. MeshAllocator stores meshes in a shared vertex and a
// shared index buffer. Both follow the same protocol with the passes that
// own them:
//
//   - Add or allocate at any time; the data is kept on the CPU until a
//     frame uploads it.
//   - Report ShouldRebuild from the pass's ShouldRebuild, so the graph is
//     rebuilt when the backing objects must grow.
//   - Call Declare from Create and Recreate, and ReadWrite for every pass
//     that uses the backing objects.
//   - Call Textures or Allocations inside the pass callback. Pending data
//     is uploaded there, before it is bound.
//
// Neither type is safe for concurrent use.
package atlas
