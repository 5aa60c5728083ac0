// Package denoise removes physiological artefacts from concentration signals.
//
// The transfer-function method models the part of each channel that is
// linearly predictable from a band-limited physiological reference
// (respiration or heart rate) and subtracts it. The filter order is chosen per
// 240 s block by an information criterion over a range of orders. The common
// average reference method subtracts the mean of the usable channels instead.
package denoise
