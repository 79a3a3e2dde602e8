// Package pipeline groups flattened task rows into process and assignee
// rollups for dashboard rendering. Process blocks key on the finest known
// hierarchy level (list, then folder, then space); assignee blocks fan a
// row out to every person on it. Both carry a current-vs-previous window
// trend. All functions are pure: the caller supplies the rows, the window
// size, and the clock.
package pipeline
