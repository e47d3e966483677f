// Package supervisor starts, health-checks and stops mock app processes.
//
// Each app runs in a child process started through a Spawner. The default
// spawner re-executes the current binary with the hidden "app run" command
// and passes the app Spec as JSON in the HTTPMOCKER_APP_SPEC environment
// variable. Children run in their own process group so that stopping an app
// also stops anything it started.
package supervisor
