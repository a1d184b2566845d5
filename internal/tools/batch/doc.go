// Package batch runs one operation over several items and collects a
// per-item outcome, so that one failed upload does not hide the links of the
// ones that succeeded.
package batch
