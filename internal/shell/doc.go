// Package shell fits an intrinsic curvilinear coordinate system to a
// tube-like 3-D point cloud (for example a root tip) and maps points between
// world coordinates and shell coordinates.
//
// A fit produces an ordered sequence of control points along a smooth
// central axis. Each control point carries an orthonormal local frame
// (axial, lateral1, lateral2), a cumulative arc-length offset and an
// elliptical cross-section. Queries blend these discrete samples
// continuously, so coordinates vary smoothly between control points.
//
// Pipeline (Fit):
//  1. PCA initialization: straight axis along the principal direction.
//  2. Frames: tangents, parallel-transported local frames, offsets.
//  3. Axis refinement: Gaussian-weighted lateral re-centering, smoothing,
//     linear tail extrapolation.
//  4. Cross-sections: RANSAC ellipse fit per control point, control point
//     moved to the ellipse centre, ellipse parameters smoothed.
//
// Steps 3 and 4 alternate for Params.EllipseIterations outer passes.
//
// The input point cloud is never modified. A *Transform is immutable after
// Fit returns, apart from its internally synchronized surface mesh cache, so
// it is safe for concurrent queries.
package shell
