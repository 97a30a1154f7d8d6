// Cachectl is the command-line companion to the batch renamer cache service.
//
// It opens the same SQLite store and thumbnail directory the service uses,
// resolved from the same configuration file and BATCHRENAMER_* environment
// variables, so it should not run against a store the service has open.
//
// Usage:
//
//	cachectl hash ~/Pictures            # hash and store every file
//	cachectl meta --extended photo.jpg  # extract the full metadata set
//	cachectl thumbs ~/Pictures          # pre-generate thumbnails
//	cachectl rename --move a.jpg b.jpg  # rename and carry cached records
//	cachectl rename --map renames.tsv   # carry records for a batch rename
//	cachectl dupes                      # list identical files
//	cachectl stats                      # row counts and file sizes
//	cachectl config init                # write config.yaml with defaults
package main
