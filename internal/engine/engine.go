// Package engine orchestrates the packaging pipelines.
//
// Build runs the asset stages (styles and scripts) concurrently, then
// validation, then the archive. Dev runs the asset stages once and then
// re-validates the component folder whenever it changes.
package engine
