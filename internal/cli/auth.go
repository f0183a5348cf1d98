package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onemirror/onemirror/internal/auth"
	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage stored Microsoft Graph credentials",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store Graph API credentials",
	Long: `Store an access token for the current profile. Obtain the token from
an OAuth2 flow or the Azure CLI and pass it via --access-token or the
ONEMIRROR_ACCESS_TOKEN environment variable.`,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long:  "Delete stored credentials for the current or specified profile",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Display current authentication status and credential information",
	RunE:  runAuthStatus,
}

var authProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List credential profiles",
	Long:  "Display all stored credential profiles",
	RunE:  runAuthProfiles,
}

var (
	authAccessToken  string
	authRefreshToken string
	authExpiresIn    int
	authScopes       []string
)

func init() {
	authLoginCmd.Flags().StringVar(&authAccessToken, "access-token", "", "Graph API access token")
	authLoginCmd.Flags().StringVar(&authRefreshToken, "refresh-token", "", "OAuth refresh token")
	authLoginCmd.Flags().IntVar(&authExpiresIn, "expires-in", 3600, "Token lifetime in seconds")
	authLoginCmd.Flags().StringSliceVar(&authScopes, "scopes", []string{}, "Granted OAuth scopes")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authProfilesCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	if authAccessToken == "" {
		authAccessToken = os.Getenv("ONEMIRROR_ACCESS_TOKEN")
	}
	if authRefreshToken == "" {
		authRefreshToken = os.Getenv("ONEMIRROR_REFRESH_TOKEN")
	}
	if authAccessToken == "" {
		return writeAppError(out, "auth.login", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeAuthRequired,
				"Access token required. Set via --access-token or ONEMIRROR_ACCESS_TOKEN").Build()))
	}

	mgr := auth.NewManager(getConfigDir())
	if warning := mgr.StorageWarning(); warning != "" {
		out.Log("%s", warning)
	}

	creds := &types.Credentials{
		AccessToken:  authAccessToken,
		RefreshToken: authRefreshToken,
		ExpiryDate:   time.Now().Add(time.Duration(authExpiresIn) * time.Second),
		Scopes:       authScopes,
	}

	if err := mgr.SaveCredentials(flags.Profile, creds); err != nil {
		return writeAppError(out, "auth.login", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()))
	}

	out.Log("Credentials stored for profile: %s", flags.Profile)
	return out.WriteSuccess("auth.login", map[string]interface{}{
		"profile":        flags.Profile,
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"storageBackend": mgr.StorageName(),
	})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr := auth.NewManager(getConfigDir())

	if err := mgr.DeleteCredentials(flags.Profile); err != nil {
		return writeAppError(out, "auth.logout", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("No credentials found for profile '%s'", flags.Profile)).Build()))
	}

	out.Log("Credentials removed for profile: %s", flags.Profile)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"profile": flags.Profile,
		"status":  "logged_out",
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr := auth.NewManager(getConfigDir())
	if warning := mgr.StorageWarning(); warning != "" && flags.Verbose {
		out.Log("%s", warning)
	}

	creds, err := mgr.LoadCredentials(flags.Profile)
	if err != nil {
		return out.WriteSuccess("auth.status", map[string]interface{}{
			"profile":        flags.Profile,
			"authenticated":  false,
			"storageBackend": mgr.StorageName(),
		})
	}

	expired := !creds.ExpiryDate.IsZero() && time.Now().After(creds.ExpiryDate)
	return out.WriteSuccess("auth.status", map[string]interface{}{
		"profile":        flags.Profile,
		"authenticated":  !expired,
		"expired":        expired,
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"storageBackend": mgr.StorageName(),
	})
}

func runAuthProfiles(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr := auth.NewManager(getConfigDir())

	profiles, err := mgr.ListProfiles()
	if err != nil {
		return writeAppError(out, "auth.profiles", utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeUnknown,
				fmt.Sprintf("Failed to list profiles: %v", err)).Build()))
	}

	var profileDetails []map[string]interface{}
	for _, profile := range profiles {
		detail := map[string]interface{}{
			"profile": profile,
		}

		creds, err := mgr.LoadCredentials(profile)
		if err == nil {
			detail["authenticated"] = true
			detail["expiry"] = creds.ExpiryDate.Format(time.RFC3339)
			detail["scopes"] = creds.Scopes
		} else {
			detail["authenticated"] = false
			detail["error"] = err.Error()
		}

		profileDetails = append(profileDetails, detail)
	}

	return out.WriteSuccess("auth.profiles", map[string]interface{}{
		"profiles":       profileDetails,
		"count":          len(profiles),
		"storageBackend": mgr.StorageName(),
	})
}
