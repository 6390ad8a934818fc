// meta/meta.go
package meta

// SIZE defines the number of rows and columns of the board.
const SIZE = 3

// CELLS defines the number of cells on the board.
const CELLS = SIZE * SIZE

// WIN_SCORE defines the search score of an immediate win, reduced by one per ply.
const WIN_SCORE = 10

// CACHE_AUTOSAVE defines how many cache misses trigger an autosave.
const CACHE_AUTOSAVE = 100
