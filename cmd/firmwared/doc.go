// Command firmwared is the user-space firmware loader. Run without a
// subcommand it serves kernel firmware requests until SIGTERM or SIGINT; the
// subcommands inspect pending requests, resolve names against the search path
// and manage the configuration file.
package main
