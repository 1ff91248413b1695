package main

import (
	"fmt"

	"beeline/internal/config"
	"beeline/internal/domain"
	"beeline/internal/session"

	"github.com/spf13/cobra"
)

// requireUser loads the stored identity for commands that act on behalf of
// the signed-in user.
func requireUser(cfg *config.Config) (domain.User, error) {
	store, err := session.Open(cfg.Session.DBPath, logger)
	if err != nil {
		return domain.User{}, err
	}
	defer store.Close()

	_, user, ok, err := store.Load()
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, fmt.Errorf("not signed in, run 'beeline login'")
	}
	return user, nil
}

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage your address book",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			user, err := requireUser(cfg)
			if err != nil {
				return err
			}
			contacts, err := newAPI(cfg).Contacts(cmd.Context(), user.UserPhone)
			if err != nil {
				return err
			}
			if len(contacts) == 0 {
				fmt.Println("No contacts yet.")
				return nil
			}
			for _, c := range contacts {
				status := ""
				if !c.IsRegistered {
					status = " (not on Beeline)"
				}
				fmt.Printf("%-20s %s%s\n", c.Name(), c.ContactPhone, status)
			}
			return nil
		},
	})

	addCmd := &cobra.Command{
		Use:   "add <phone> <name>",
		Short: "Add a contact; a chat is created when they are registered",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			user, err := requireUser(cfg)
			if err != nil {
				return err
			}
			res, err := newAPI(cfg).AddContact(cmd.Context(), user.UserPhone, args[0], args[1])
			if err != nil {
				return err
			}
			switch {
			case res.ChatCreated:
				fmt.Printf("Added %s. Chat created.\n", args[1])
			case res.IsRegistered:
				fmt.Printf("Added %s.\n", args[1])
			default:
				fmt.Printf("Added %s. They are not on Beeline yet.\n", args[1])
			}
			return nil
		},
	}
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <phone>",
		Short: "Remove a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			user, err := requireUser(cfg)
			if err != nil {
				return err
			}
			return newAPI(cfg).RemoveContact(cmd.Context(), user.UserPhone, args[0])
		},
	})

	return cmd
}

func groupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage group chats",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name> <member-phone>...",
		Short: "Create a group with you as admin",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			user, err := requireUser(cfg)
			if err != nil {
				return err
			}
			return newAPI(cfg).CreateGroup(cmd.Context(), args[0], user.UserPhone, args[1:])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "info <chat-id>",
		Short: "Show a group's name and members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			info, err := newAPI(cfg).Group(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(info.GroupName)
			for _, m := range info.Members {
				admin := ""
				if m.IsAdmin {
					admin = " (admin)"
				}
				fmt.Printf("  %-20s %s%s\n", m.Name, m.Phone, admin)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <chat-id> <new-name>",
		Short: "Rename a group (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			user, err := requireUser(cfg)
			if err != nil {
				return err
			}
			return newAPI(cfg).RenameGroup(cmd.Context(), args[0], user.UserPhone, args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <chat-id> <member-phone>",
		Short: "Add a member (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			user, err := requireUser(cfg)
			if err != nil {
				return err
			}
			return newAPI(cfg).AddGroupMember(cmd.Context(), args[0], user.UserPhone, args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <chat-id> <member-phone>",
		Short: "Remove a member (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			user, err := requireUser(cfg)
			if err != nil {
				return err
			}
			return newAPI(cfg).RemoveGroupMember(cmd.Context(), args[0], user.UserPhone, args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "leave <chat-id>",
		Short: "Leave a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			user, err := requireUser(cfg)
			if err != nil {
				return err
			}
			return newAPI(cfg).RemoveGroupMember(cmd.Context(), args[0], user.UserPhone, user.UserPhone)
		},
	})

	return cmd
}
