package chat

import (
	"context"
	"errors"

	"github.com/haasonsaas/huddle/internal/storage"
	"github.com/haasonsaas/huddle/pkg/models"
)

// CreateGroup creates a group owned by actorID. Initial members that do not
// exist, are duplicated, are the creator, or have a block with an already
// accepted member are skipped. Every member receives group_created.
func (s *Service) CreateGroup(ctx context.Context, actorID int64, name, description string, initialMembers []int64) (view *GroupView, err error) {
	defer func() { s.logFailure(ctx, "create_group", err) }()

	name, err = s.clean.text("groupName", name, true, s.cfg.MaxGroupNameLength)
	if err != nil {
		return nil, err
	}
	description, err = s.clean.text("groupDescription", description, false, s.cfg.MaxDescriptionLength)
	if err != nil {
		return nil, err
	}

	accepted := []int64{actorID}
	seen := map[int64]bool{actorID: true}
	for _, userID := range initialMembers {
		if userID <= 0 || seen[userID] {
			continue
		}
		seen[userID] = true
		if _, err := s.users.Get(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.DebugContext(ctx, "skipping unknown initial member", "user_id", userID)
				continue
			}
			return nil, storeErr("load user", err)
		}
		if err := s.guard.CheckAgainst(ctx, userID, accepted); err != nil {
			if CodeOf(err) == CodeUserBlocked {
				s.logger.DebugContext(ctx, "skipping blocked initial member", "user_id", userID)
				continue
			}
			return nil, err
		}
		accepted = append(accepted, userID)
	}

	now := s.now()
	group := &models.Group{
		ID:          s.newID(),
		Name:        name,
		Description: description,
		CreatorID:   actorID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.groups.Create(ctx, group, accepted); err != nil {
		return nil, storeErr("create group", err)
	}
	members, err := s.groups.Members(ctx, group.ID)
	if err != nil {
		return nil, storeErr("load members", err)
	}
	group.MemberCount = len(members)
	view = &GroupView{Group: *group, Members: members}

	s.logger.InfoContext(ctx, "group created", "group_id", group.ID, "creator_id", actorID, "members", len(members))
	s.deliver(ctx, actorID, models.MemberIDs(members), &GroupCreated{
		Header: newHeader(EventGroupCreated),
		Group:  *view,
	})
	return view, nil
}

// GetGroupInfo returns the group and its members to a current member.
func (s *Service) GetGroupInfo(ctx context.Context, actorID int64, groupID string) (view *GroupView, err error) {
	defer func() { s.logFailure(ctx, "get_group_info", err) }()

	group, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.memberSnapshot(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	group.MemberCount = len(members)
	return &GroupView{Group: *group, Members: members}, nil
}

// GetUserGroups lists the active groups actorID belongs to.
func (s *Service) GetUserGroups(ctx context.Context, actorID int64) (groups []*models.Group, err error) {
	defer func() { s.logFailure(ctx, "get_user_groups", err) }()

	groups, err = s.groups.ListForUser(ctx, actorID)
	if err != nil {
		return nil, storeErr("list groups", err)
	}
	return groups, nil
}

// UpdateGroupInfo changes the name and/or description. Any current member may
// update; all members receive group_updated.
func (s *Service) UpdateGroupInfo(ctx context.Context, actorID int64, groupID string, updates GroupUpdates) (group *models.Group, err error) {
	defer func() { s.logFailure(ctx, "update_group_info", err) }()

	if updates.GroupName == nil && updates.GroupDescription == nil {
		return nil, Errorf(CodeValidation, "updates must change groupName or groupDescription")
	}
	var applied GroupUpdates
	if updates.GroupName != nil {
		name, err := s.clean.text("groupName", *updates.GroupName, true, s.cfg.MaxGroupNameLength)
		if err != nil {
			return nil, err
		}
		applied.GroupName = &name
	}
	if updates.GroupDescription != nil {
		description, err := s.clean.text("groupDescription", *updates.GroupDescription, false, s.cfg.MaxDescriptionLength)
		if err != nil {
			return nil, err
		}
		applied.GroupDescription = &description
	}

	err = s.withLane(ctx, groupLane(groupID), func() error {
		current, err := s.activeGroup(ctx, groupID)
		if err != nil {
			return err
		}
		members, err := s.memberSnapshot(ctx, groupID, actorID)
		if err != nil {
			return err
		}

		name, description := current.Name, current.Description
		if applied.GroupName != nil {
			name = *applied.GroupName
		}
		if applied.GroupDescription != nil {
			description = *applied.GroupDescription
		}
		now := s.now()
		if err := s.groups.Update(ctx, groupID, name, description, now); err != nil {
			return storeErr("update group", err)
		}
		current.Name, current.Description, current.UpdatedAt = name, description, now
		current.MemberCount = len(members)
		group = current

		s.deliver(ctx, actorID, models.MemberIDs(members), &GroupUpdated{
			Header:    newHeader(EventGroupUpdated),
			GroupID:   groupID,
			Updates:   applied,
			UpdatedBy: actorID,
			Group:     current,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// AddMember adds userID to the group. The actor must be a member and the
// target must have no block with any current member. Adding an existing
// member succeeds without a broadcast.
func (s *Service) AddMember(ctx context.Context, actorID int64, groupID string, userID int64) (member *models.Member, err error) {
	defer func() { s.logFailure(ctx, "add_group_member", err) }()

	if err := requireUser(userID, "userId"); err != nil {
		return nil, err
	}
	err = s.withLane(ctx, groupLane(groupID), func() error {
		group, err := s.activeGroup(ctx, groupID)
		if err != nil {
			return err
		}
		members, err := s.memberSnapshot(ctx, groupID, actorID)
		if err != nil {
			return err
		}
		user, err := s.users.Get(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Errorf(CodeNotFound, "user not found")
			}
			return storeErr("load user", err)
		}

		for i := range members {
			if members[i].UserID == userID {
				member = &members[i]
				s.deliverOne(ctx, actorID, actorID, &MemberAdded{
					Header:        newHeader(EventMemberAdded),
					GroupID:       groupID,
					Member:        members[i],
					AddedBy:       actorID,
					AlreadyMember: true,
				})
				return nil
			}
		}

		if err := s.guard.CheckAgainst(ctx, userID, models.MemberIDs(members)); err != nil {
			return err
		}

		now := s.now()
		if _, err := s.groups.AddMember(ctx, groupID, userID, now); err != nil {
			return storeErr("add member", err)
		}
		member = &models.Member{GroupID: groupID, UserID: userID, Username: user.Username, JoinedAt: now}
		group.MemberCount = len(members) + 1

		s.logger.InfoContext(ctx, "member added", "group_id", groupID, "user_id", userID, "added_by", actorID)
		s.deliver(ctx, actorID, append(models.MemberIDs(members), userID), &MemberAdded{
			Header:  newHeader(EventMemberAdded),
			GroupID: groupID,
			Member:  *member,
			AddedBy: actorID,
			Group:   group,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// RemoveMember removes userID from the group. Only the creator may remove
// other members; removing yourself is leaving. Removing a non-member is a
// no-op success reported to the actor only.
func (s *Service) RemoveMember(ctx context.Context, actorID int64, groupID string, userID int64) (err error) {
	if err := requireUser(userID, "userId"); err != nil {
		return err
	}
	if userID == actorID {
		return s.LeaveGroup(ctx, actorID, groupID)
	}
	defer func() { s.logFailure(ctx, "remove_group_member", err) }()

	return s.withLane(ctx, groupLane(groupID), func() error {
		group, err := s.activeGroup(ctx, groupID)
		if err != nil {
			return err
		}
		members, err := s.memberSnapshot(ctx, groupID, actorID)
		if err != nil {
			return err
		}
		if group.CreatorID != actorID {
			return Errorf(CodeForbidden, "only the group creator can remove members")
		}

		removed, err := s.groups.RemoveMember(ctx, groupID, userID)
		if err != nil {
			return storeErr("remove member", err)
		}
		ev := &MemberRemoved{
			Header:    newHeader(EventMemberRemoved),
			GroupID:   groupID,
			UserID:    userID,
			RemovedBy: actorID,
			WasMember: removed,
		}
		if !removed {
			s.deliverOne(ctx, actorID, actorID, ev)
			return nil
		}
		s.logger.InfoContext(ctx, "member removed", "group_id", groupID, "user_id", userID, "removed_by", actorID)
		s.deliver(ctx, actorID, models.MemberIDs(members), ev)
		return nil
	})
}

// LeaveGroup removes the actor. When the last member leaves the group is
// deactivated.
func (s *Service) LeaveGroup(ctx context.Context, actorID int64, groupID string) (err error) {
	defer func() { s.logFailure(ctx, "leave_group", err) }()

	return s.withLane(ctx, groupLane(groupID), func() error {
		if _, err := s.activeGroup(ctx, groupID); err != nil {
			return err
		}
		members, err := s.memberSnapshot(ctx, groupID, actorID)
		if err != nil {
			return err
		}
		if _, err := s.groups.RemoveMember(ctx, groupID, actorID); err != nil {
			return storeErr("leave group", err)
		}

		deactivated := len(members) == 1
		if deactivated {
			if err := s.groups.Deactivate(ctx, groupID, s.now()); err != nil {
				return storeErr("deactivate group", err)
			}
		}
		s.logger.InfoContext(ctx, "member left", "group_id", groupID, "user_id", actorID, "deactivated", deactivated)
		s.deliver(ctx, actorID, models.MemberIDs(members), &LeftGroup{
			Header:      newHeader(EventLeftGroup),
			GroupID:     groupID,
			UserID:      actorID,
			Deactivated: deactivated,
		})
		return nil
	})
}

// DeleteGroup deactivates the group. Only the creator may tear it down.
func (s *Service) DeleteGroup(ctx context.Context, actorID int64, groupID string) (err error) {
	defer func() { s.logFailure(ctx, "delete_group", err) }()

	return s.withLane(ctx, groupLane(groupID), func() error {
		group, err := s.activeGroup(ctx, groupID)
		if err != nil {
			return err
		}
		members, err := s.memberSnapshot(ctx, groupID, actorID)
		if err != nil {
			return err
		}
		if group.CreatorID != actorID {
			return Errorf(CodeForbidden, "only the group creator can delete the group")
		}
		if err := s.groups.Deactivate(ctx, groupID, s.now()); err != nil {
			return storeErr("deactivate group", err)
		}
		s.logger.InfoContext(ctx, "group deleted", "group_id", groupID, "deleted_by", actorID)
		s.deliver(ctx, actorID, models.MemberIDs(members), &GroupDeleted{
			Header:    newHeader(EventGroupDeleted),
			GroupID:   groupID,
			DeletedBy: actorID,
		})
		return nil
	})
}
