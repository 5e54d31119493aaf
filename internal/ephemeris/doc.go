// Package ephemeris computes topocentric Sun and Moon altitudes and the lunar
// phase for an observer.
//
// Positions use the low-precision solar theory and a truncated lunar series
// from Meeus, Astronomical Algorithms (2nd ed.), chapters 25 and 47. Accuracy
// is a few arcminutes for the Sun and roughly a tenth of a degree for the
// Moon over 1950-2100, well inside what a plotted altitude track needs.
// Universal Time is used in place of Terrestrial Time and atmospheric
// refraction is ignored, so altitudes are geometric.
package ephemeris
